// Package notebook models the lab notebooks indexed by the search engine and
// the synthesis hierarchy extracted from them:
//
//	Notebook -> Synthesis -> Part -> Reaction -> ReactionRole -> Molecule
package notebook

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ─────────────────────────────────────────────────────────────────────────────
// Roles
// ─────────────────────────────────────────────────────────────────────────────

// Role is the part a molecule plays in a reaction.
type Role string

const (
	RoleReactant Role = "reactant"
	RoleProduct  Role = "product"
	RoleCatalyst Role = "catalyst"
	RoleSolvent  Role = "solvent"
	RoleReagent  Role = "reagent"
)

// ─────────────────────────────────────────────────────────────────────────────
// Entities
// ─────────────────────────────────────────────────────────────────────────────

// Notebook is a research notebook stored as a document in the bucket.
type Notebook struct {
	ID          uuid.UUID `json:"id"`
	GCSPath     string    `json:"gcs_path"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Syntheses is populated only by GetWithHierarchy.
	Syntheses []*Synthesis `json:"syntheses,omitempty"`
}

// Filename is the last segment of the storage path.
func (n *Notebook) Filename() string {
	if n.GCSPath == "" {
		return ""
	}
	return path.Base(strings.TrimRight(n.GCSPath, "/"))
}

// DisplayTitle is the title, or the filename for untitled notebooks.
func (n *Notebook) DisplayTitle() string {
	if n.Title != "" {
		return n.Title
	}
	return n.Filename()
}

// Synthesis is one synthesis experiment documented in a notebook.
type Synthesis struct {
	ID          uuid.UUID `json:"id"`
	NotebookID  uuid.UUID `json:"notebook_id"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Parts       []*Part   `json:"parts,omitempty"`
}

// Part is an ordered stage of a synthesis.
type Part struct {
	ID             uuid.UUID   `json:"id"`
	SynthesisID    uuid.UUID   `json:"synthesis_id"`
	Name           string      `json:"name,omitempty"`
	SequenceNumber int         `json:"sequence_number"`
	Description    string      `json:"description,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	Reactions      []*Reaction `json:"reactions,omitempty"`
}

// Reaction is a single chemical transformation.
type Reaction struct {
	ID             uuid.UUID       `json:"id"`
	PartID         uuid.UUID       `json:"part_id"`
	Name           string          `json:"name,omitempty"`
	ReactionSMILES string          `json:"reaction_smiles,omitempty"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Roles          []*ReactionRole `json:"roles,omitempty"`
}

// ReactionRole links a molecule to a reaction.
type ReactionRole struct {
	ID            uuid.UUID `json:"id"`
	ReactionID    uuid.UUID `json:"reaction_id"`
	MoleculeID    uuid.UUID `json:"molecule_id"`
	SMILES        string    `json:"smiles,omitempty"`
	Role          Role      `json:"role"`
	Stoichiometry string    `json:"stoichiometry,omitempty"`
}

// WithRole returns the roles of r matching role.
func (r *Reaction) WithRole(role Role) []*ReactionRole {
	var out []*ReactionRole
	for _, rr := range r.Roles {
		if rr.Role == role {
			out = append(out, rr)
		}
	}
	return out
}

// Reactants is shorthand for WithRole(RoleReactant).
func (r *Reaction) Reactants() []*ReactionRole { return r.WithRole(RoleReactant) }

// Products is shorthand for WithRole(RoleProduct).
func (r *Reaction) Products() []*ReactionRole { return r.WithRole(RoleProduct) }
