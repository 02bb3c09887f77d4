package chat

import (
	"strings"

	"github.com/turtacn/molecule-search/internal/domain/molecule"
	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/pkg/errors"
)

const (
	smilesContextPrefix     = "\n\nContext: The user has provided a molecule with SMILES notation: "
	additionalContextPrefix = "\n\nAdditional context: "

	// maxContextNotebooks bounds how many notebook titles are added to a query.
	maxContextNotebooks = 5
)

// SendMessageRequest is one user turn.
type SendMessageRequest struct {
	Prompt    string `json:"prompt"`
	SMILES    string `json:"smiles,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Validate trims the optional fields and requires a prompt.
func (r *SendMessageRequest) Validate() error {
	r.SMILES = strings.TrimSpace(r.SMILES)
	r.SessionID = strings.TrimSpace(r.SessionID)
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New(errors.ErrCodeChatPromptRequired, "Prompt is required")
	}
	return nil
}

// MoleculeContext is what the database knows about the structure attached
// to a prompt.
type MoleculeContext struct {
	Molecule  *molecule.Molecule
	Notebooks []*notebook.Notebook
}

// String renders the context as one line, or "" when there is nothing to add.
func (mc *MoleculeContext) String() string {
	if mc == nil {
		return ""
	}
	var parts []string
	if mc.Molecule != nil {
		if d := mc.Molecule.Describe(); d != "" {
			parts = append(parts, "Known properties: "+d+".")
		}
	}
	if len(mc.Notebooks) > 0 {
		titles := make([]string, 0, maxContextNotebooks)
		for i, nb := range mc.Notebooks {
			if i == maxContextNotebooks {
				break
			}
			titles = append(titles, nb.DisplayTitle())
		}
		parts = append(parts, "It appears in these notebooks: "+strings.Join(titles, "; ")+".")
	}
	return strings.Join(parts, " ")
}

// BuildQuery composes the text sent upstream. The prompt is used as-is
// unless a SMILES string accompanies it.
func BuildQuery(prompt, smiles string, mc *MoleculeContext) string {
	if smiles == "" {
		return prompt
	}
	q := prompt + smilesContextPrefix + smiles
	if extra := mc.String(); extra != "" {
		q += additionalContextPrefix + extra
	}
	return q
}
