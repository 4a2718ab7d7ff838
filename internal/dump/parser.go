package dump

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"openletter/internal/nation/models"
)

// Element names in the nations dump.
const (
	recordElement = "NATION"
	fieldName     = "NAME"
	fieldFlag     = "FLAG"
	fieldRegion   = "REGION"
)

// TokenSource yields XML tokens one at a time. *xml.Decoder satisfies it.
type TokenSource interface {
	Token() (xml.Token, error)
}

// Record is one nation as captured from the dump, before normalisation.
type Record struct {
	Name   string
	Flag   string
	Region string
}

// Entry converts the record into a cache entry with the flag URL resolved and
// the region defaulted.
func (r Record) Entry() models.Entry {
	return models.Entry{
		Name:    strings.TrimSpace(r.Name),
		FlagURL: models.FlagURL(r.Flag),
		Region:  models.RegionOrUnknown(r.Region),
	}
}

type parseState int

const (
	stateIdle parseState = iota
	stateInRecord
	stateInField
)

// Parser pulls records out of the dump without building a tree. It keeps one
// record accumulator and only captures the three fields it needs; any other
// element inside a record is skipped along with its content.
type Parser struct {
	src   TokenSource
	state parseState
	// depth counts open elements below the record element.
	depth int
	field string

	name, flag, region strings.Builder

	records int
	skipped int
}

func NewParser(src TokenSource) *Parser {
	return &Parser{src: src}
}

// Next returns the next record that has a name. Records without one are
// counted in Skipped and passed over. Next returns io.EOF at the end of the
// document; a document that ends inside a record is an error.
func (p *Parser) Next() (Record, error) {
	for {
		tok, err := p.src.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if p.state != stateIdle {
					return Record{}, fmt.Errorf("dump ended inside a %s record: %w", recordElement, io.ErrUnexpectedEOF)
				}
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("read dump token: %w", err)
		}

		rec, done := p.step(tok)
		if done {
			return rec, nil
		}
	}
}

// step advances the state machine by one token and reports a completed record.
func (p *Parser) step(tok xml.Token) (Record, bool) {
	switch p.state {
	case stateIdle:
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == recordElement {
			p.reset()
			p.state = stateInRecord
		}

	case stateInRecord:
		switch t := tok.(type) {
		case xml.StartElement:
			p.depth++
			if p.depth == 1 && isField(t.Name.Local) {
				p.field = t.Name.Local
				p.state = stateInField
			}
		case xml.EndElement:
			if p.depth == 0 {
				p.state = stateIdle
				return p.complete()
			}
			p.depth--
		}

	case stateInField:
		switch t := tok.(type) {
		case xml.CharData:
			if p.depth == 1 {
				p.slot().Write(t)
			}
		case xml.StartElement:
			p.depth++
		case xml.EndElement:
			p.depth--
			if p.depth == 0 {
				p.field = ""
				p.state = stateInRecord
			}
		}
	}
	return Record{}, false
}

func (p *Parser) complete() (Record, bool) {
	rec := Record{
		Name:   strings.TrimSpace(p.name.String()),
		Flag:   strings.TrimSpace(p.flag.String()),
		Region: strings.TrimSpace(p.region.String()),
	}
	if rec.Name == "" {
		p.skipped++
		return Record{}, false
	}
	p.records++
	return rec, true
}

func (p *Parser) reset() {
	p.depth = 0
	p.field = ""
	p.name.Reset()
	p.flag.Reset()
	p.region.Reset()
}

func (p *Parser) slot() *strings.Builder {
	switch p.field {
	case fieldName:
		return &p.name
	case fieldFlag:
		return &p.flag
	default:
		return &p.region
	}
}

func isField(name string) bool {
	return name == fieldName || name == fieldFlag || name == fieldRegion
}

// Records returns how many named records have been returned so far.
func (p *Parser) Records() int { return p.records }

// Skipped returns how many records were dropped for having no name.
func (p *Parser) Skipped() int { return p.skipped }
