// Package cardrender draws query results as a grid of cards.
package cardrender

import (
	"fmt"
	"sort"

	"github.com/marcus/notecards/internal/blockconfig"
	"github.com/marcus/notecards/internal/dataview"
)

// Field is a labelled value shown on a card.
type Field struct {
	Key   string
	Value string
}

// Card is the display model of one result row.
type Card struct {
	Title  string
	Path   string
	Image  string
	Fields []Field
	Tags   []string
}

// CardsFrom converts a query value into cards. Lists show the configured
// properties; tables show their columns.
func CardsFrom(data any, cfg blockconfig.RenderConfig) ([]Card, error) {
	switch v := data.(type) {
	case dataview.PageList:
		cards := make([]Card, 0, len(v))
		for _, p := range v {
			c := baseCard(p, cfg)
			for _, key := range cfg.Properties {
				if val, ok := p.Field(key); ok && val != nil {
					c.Fields = append(c.Fields, Field{Key: key, Value: dataview.FormatValue(val)})
				}
			}
			cards = append(cards, c)
		}
		return cards, nil

	case *dataview.Table:
		if v == nil {
			return nil, nil
		}
		cards := make([]Card, 0, len(v.Rows))
		for _, row := range v.Rows {
			c := baseCard(row.Page, cfg)
			for i, val := range row.Values {
				if val == nil || i+1 >= len(v.Headers) {
					continue
				}
				key := v.Headers[i+1]
				if key == cfg.TitleProperty || key == cfg.ImageProperty {
					continue
				}
				c.Fields = append(c.Fields, Field{Key: key, Value: dataview.FormatValue(val)})
			}
			cards = append(cards, c)
		}
		return cards, nil
	}
	return nil, fmt.Errorf("cannot render %T as cards", data)
}

func baseCard(p *dataview.Page, cfg blockconfig.RenderConfig) Card {
	c := Card{Title: p.Title(cfg.TitleProperty), Path: p.Path}
	if cfg.ImageProperty != "" {
		if img, ok := p.Field(cfg.ImageProperty); ok && img != nil {
			c.Image = dataview.FormatValue(img)
		}
	}
	if cfg.Tags() {
		c.Tags = append([]string(nil), p.Tags...)
		sort.Strings(c.Tags)
	}
	return c
}
