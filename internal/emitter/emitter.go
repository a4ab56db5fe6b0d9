// =============================================================================
// ASYCUDA Export - Format Emitters
// =============================================================================
//
// Renders a validated declaration into the artifacts ASYCUDA and the broker
// need:
//
//   xml  : markup document for ASYCUDA import (round-trips via ParseMarkup)
//   txt  : pipe-delimited H/I/T records (round-trips via ParseDelimited)
//   xlsx : review workbook with Declaration, Items and Summary sheets
//   html : printable form laid out like the SAD boxes
//
// The set of formats is closed. Callers pick one with New and list them with
// Names. The two one-way formats check every populated declaration field
// against their slot tables, so a field added to the model without a slot
// fails loudly instead of being dropped. The two round-trip formats refuse
// values they cannot carry unchanged: control characters in text and
// weights finer than a gram.
//
// =============================================================================

package emitter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ginjaninja78/asycuda-export/internal/declaration"
)

// Emitter renders a declaration into one artifact format.
type Emitter interface {
	// Format is the registered name, e.g. "xml".
	Format() string

	// ContentType is the MIME type of the artifact.
	ContentType() string

	// Extension is the file extension including the dot.
	Extension() string

	// Emit renders d. Failures are *FormatEmissionError.
	Emit(d *declaration.Declaration) ([]byte, error)
}

// FormatEmissionError reports a failure of one emitter. It never affects
// other formats.
type FormatEmissionError struct {
	Format string

	// Field is the path of the offending field, if any.
	Field string

	Err error
}

func (e *FormatEmissionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("%s: field %s: %v", e.Format, e.Field, e.Err)
}

func (e *FormatEmissionError) Unwrap() error { return e.Err }

var registry = map[string]func() Emitter{
	"xml":  func() Emitter { return Markup{} },
	"txt":  func() Emitter { return Delimited{} },
	"xlsx": func() Emitter { return Spreadsheet{} },
	"html": func() Emitter { return Printable{} },
}

// New returns the emitter registered under name (case-insensitive).
func New(name string) (Emitter, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the registered formats in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// checkSlots returns the path of the first populated field that slotted does
// not accept.
func checkSlots(d *declaration.Declaration, slotted func(path string) bool) (string, bool) {
	for _, f := range d.Fields() {
		if !slotted(f.Path) {
			return f.Path, false
		}
	}
	return "", true
}

// itemField strips the "items[i]." prefix from an item field path.
func itemField(path string) (string, bool) {
	if !strings.HasPrefix(path, "items[") {
		return "", false
	}
	_, name, ok := strings.Cut(path, "].")
	return name, ok
}

// checkRoundTrip returns a FormatEmissionError for the first value that the
// xml and txt formats would not reproduce exactly.
func checkRoundTrip(format string, d *declaration.Declaration) error {
	for _, f := range d.Fields() {
		if declaration.HasControl(f.Value) {
			return &FormatEmissionError{Format: format, Field: f.Path, Err: fmt.Errorf("value contains a control character")}
		}
	}
	for i, item := range d.Items {
		if !declaration.WeightFits(item.GrossWeight) {
			return &FormatEmissionError{Format: format, Field: declaration.ItemPath(i) + ".gross_weight",
				Err: fmt.Errorf("weight %s has more than %d decimal places", item.GrossWeight, declaration.WeightPlaces)}
		}
		if !declaration.WeightFits(item.NetWeight) {
			return &FormatEmissionError{Format: format, Field: declaration.ItemPath(i) + ".net_weight",
				Err: fmt.Errorf("weight %s has more than %d decimal places", item.NetWeight, declaration.WeightPlaces)}
		}
	}
	return nil
}

func emptyDeclaration(format string, d *declaration.Declaration) error {
	if d == nil {
		return &FormatEmissionError{Format: format, Err: fmt.Errorf("declaration is nil")}
	}
	if len(d.Items) == 0 {
		return &FormatEmissionError{Format: format, Field: "items", Err: fmt.Errorf("declaration has no items")}
	}
	return nil
}
