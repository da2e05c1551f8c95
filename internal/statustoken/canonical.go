package statustoken

import (
	"golang.org/x/text/unicode/norm"

	"github.com/sevigo/extpr/internal/core"
)

// canonical returns the payload with every string NFC-normalised, so a
// template that reaches the callback through a different encoding path still
// names the same check.
func canonical(p Payload) Payload {
	return Payload{
		EventID:        norm.NFC.String(p.EventID),
		InstallationID: p.InstallationID,
		Template: core.StatusTemplate{
			Owner:   norm.NFC.String(p.Template.Owner),
			Repo:    norm.NFC.String(p.Template.Repo),
			SHA:     norm.NFC.String(p.Template.SHA),
			Context: norm.NFC.String(p.Template.Context),
		},
	}
}
