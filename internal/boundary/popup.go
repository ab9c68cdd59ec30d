package boundary

import (
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// PopupMaxWidth is the maximum popup width in pixels.
const PopupMaxWidth = 300

// Tooltip shows selected feature properties on hover.
type Tooltip struct {
	Fields  []string `json:"fields"`
	Aliases []string `json:"aliases"`
	Sticky  bool     `json:"sticky"`
}

// Popup shows selected feature properties on click.
type Popup struct {
	Fields   []string `json:"fields"`
	Aliases  []string `json:"aliases"`
	Labels   bool     `json:"labels"`
	MaxWidth int      `json:"max_width"`
	Localize bool     `json:"localize"`
}

// newTooltip returns nil when meta lists no tooltip fields.
func newTooltip(meta Meta) *Tooltip {
	if len(meta.TooltipFields) == 0 {
		return nil
	}
	aliases := meta.TooltipAliases
	if aliases == nil {
		aliases = []string{}
	}
	return &Tooltip{Fields: meta.TooltipFields, Aliases: aliases, Sticky: true}
}

// newPopup returns nil when meta lists no popup fields. Popup labels are the
// field names themselves.
func newPopup(meta Meta) *Popup {
	if len(meta.PopupFields) == 0 {
		return nil
	}
	return &Popup{
		Fields:   meta.PopupFields,
		Aliases:  meta.PopupFields,
		Labels:   true,
		MaxWidth: PopupMaxWidth,
		Localize: true,
	}
}

// Printer returns the message printer used to localize property values.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// HTML renders the tooltip for one feature's properties.
func (t *Tooltip) HTML(props map[string]any, p *message.Printer) string {
	if t == nil {
		return ""
	}
	return propertyTable(t.Fields, t.Aliases, props, p, false)
}

// HTML renders the popup for one feature's properties. Only fields present in
// props produce a row; the result is empty when none are present.
func (pp *Popup) HTML(props map[string]any, p *message.Printer) string {
	if pp == nil {
		return ""
	}
	return propertyTable(pp.Fields, pp.Aliases, props, p, pp.Localize)
}

func propertyTable(fields, aliases []string, props map[string]any, p *message.Printer, localize bool) string {
	var rows strings.Builder
	for i, field := range fields {
		value, ok := props[field]
		if !ok {
			continue
		}
		label := field
		if i < len(aliases) && aliases[i] != "" {
			label = aliases[i]
		}
		rows.WriteString("<tr><th style='text-align:left;padding-right:8px'>")
		rows.WriteString(html.EscapeString(label))
		rows.WriteString("</th><td>")
		rows.WriteString(html.EscapeString(formatValue(value, p, localize)))
		rows.WriteString("</td></tr>")
	}
	if rows.Len() == 0 {
		return ""
	}
	return "<table>" + rows.String() + "</table>"
}

// formatValue renders a property value. Numbers use the printer's locale when
// localize is set.
func formatValue(v any, p *message.Printer, localize bool) string {
	if v == nil {
		return ""
	}
	if f, ok := toFloat(v); ok && localize && p != nil {
		return p.Sprintf("%v", number.Decimal(f, number.MaxFractionDigits(3)))
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
