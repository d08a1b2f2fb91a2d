// Package decorate is the Decoration Composer (§4.8): it merges the Use
// Classifier's and Concurrency Analyzer's UseSites for one Symbol into
// the final, span-ordered decoration list the server returns to the
// editor, resolving same-span conflicts by model.Classification's
// priority order and composing each decoration's hover text.
package decorate

import (
	"fmt"
	"sort"

	"github.com/standardbeagle/goanalyzer/internal/model"
)

// Decoration is one editor-facing annotation: a span, its semantic
// kind, and the hover text to show for it.
type Decoration struct {
	Span  model.Range
	Kind  model.Classification
	Hover string
}

// Compose merges classifySites and raceSites for sym into the final
// ordered decoration list. When more than one site shares a span (the
// short-declaration partial-redeclaration case, or a captured variable
// that is also racy), the highest-priority classification wins.
func Compose(sym *model.Symbol, classifySites, raceSites []model.UseSite) []Decoration {
	bySpan := make(map[model.Range]model.UseSite)
	merge := func(sites []model.UseSite) {
		for _, s := range sites {
			existing, ok := bySpan[s.Span]
			if !ok || s.Classification.Priority() > existing.Classification.Priority() {
				bySpan[s.Span] = s
			}
		}
	}
	merge(classifySites)
	merge(raceSites)

	decorations := make([]Decoration, 0, len(bySpan))
	for span, site := range bySpan {
		decorations = append(decorations, Decoration{
			Span:  span,
			Kind:  site.Classification,
			Hover: hoverText(sym, site),
		})
	}

	sort.Slice(decorations, func(i, j int) bool {
		a, b := decorations[i].Span.Start, decorations[j].Span.Start
		return a.Less(b)
	})
	return decorations
}

func hoverText(sym *model.Symbol, site model.UseSite) string {
	pointerNote := ""
	if sym.IsPointer {
		pointerNote = " (reference type)"
	}
	switch site.Classification {
	case model.ClassDeclaration:
		return fmt.Sprintf("%s declared here%s", sym.Name, pointerNote)
	case model.ClassUse:
		return fmt.Sprintf("use of %s", sym.Name)
	case model.ClassReassignment:
		return fmt.Sprintf("%s reassigned", sym.Name)
	case model.ClassCaptured:
		return fmt.Sprintf("%s captured by closure", sym.Name)
	case model.ClassPointer:
		return fmt.Sprintf("address of %s taken or %s dereferenced", sym.Name, sym.Name)
	case model.ClassRaceHigh:
		return raceHover(sym.Name, "no synchronization detected", site.Note)
	case model.ClassRaceLow:
		return raceHover(sym.Name, "inconsistent synchronization", site.Note)
	default:
		return sym.Name
	}
}

func raceHover(name, reason, note string) string {
	if note == "" {
		return fmt.Sprintf("possible data race on %s: %s", name, reason)
	}
	return fmt.Sprintf("possible data race on %s: %s (%s)", name, reason, note)
}
