package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
)

// Profile captures the variance between workbook layouts: which sheet to read, which
// columns must exist and which extra header spellings map to each canonical column.
type Profile struct {
	Sheet    string
	Required []constants.Column
	aliases  map[string]constants.Column
}

type profileFile struct {
	Sheet    string              `yaml:"sheet"`
	Required []string            `yaml:"required"`
	Aliases  map[string][]string `yaml:"aliases"`
}

// DefaultProfile matches the column set of the original return workbook.
func DefaultProfile() *Profile {
	req := make([]constants.Column, len(constants.RequiredColumns))
	copy(req, constants.RequiredColumns)
	return &Profile{Required: req, aliases: map[string]constants.Column{}}
}

// LoadProfile reads a YAML column profile. Omitted required list keeps the defaults.
//
//	sheet: Devolucoes
//	required: [cnpj unidade, nota fiscal]
//	aliases:
//	  nota fiscal: ["NF-e", "Numero NF"]
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read column profile: %w", err)
	}
	return ParseProfile(raw)
}

// ParseProfile decodes a YAML column profile.
func ParseProfile(raw []byte) (*Profile, error) {
	var pf profileFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("decode column profile: %w", err)
	}

	p := DefaultProfile()
	p.Sheet = pf.Sheet
	if len(pf.Required) > 0 {
		p.Required = p.Required[:0]
		for _, r := range pf.Required {
			col, _ := constants.Canonicalize(r)
			if col == "" {
				return nil, fmt.Errorf("column profile: empty required column")
			}
			p.Required = append(p.Required, col)
		}
	}
	for canonical, spellings := range pf.Aliases {
		col, _ := constants.Canonicalize(canonical)
		if col == "" {
			return nil, fmt.Errorf("column profile: empty alias target")
		}
		for _, s := range spellings {
			p.aliases[constants.NormalizeHeader(s)] = col
		}
	}
	return p, nil
}

// Canonicalize resolves a header caption, preferring profile aliases over built-ins.
// Unknown headers come back as their normalized text.
func (p *Profile) Canonicalize(header string) constants.Column {
	if col, ok := p.aliases[constants.NormalizeHeader(header)]; ok {
		return col
	}
	col, _ := constants.Canonicalize(header)
	return col
}

// Missing lists required columns absent from the header index.
func (p *Profile) Missing(present map[constants.Column]int) []constants.Column {
	var out []constants.Column
	for _, col := range p.Required {
		if _, ok := present[col]; !ok {
			out = append(out, col)
		}
	}
	return out
}
