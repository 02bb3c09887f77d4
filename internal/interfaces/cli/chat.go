package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/molecule-search/pkg/client"
)

func newChatCmd(opts *RootOptions) *cobra.Command {
	var (
		smiles    string
		sessionID string
		refs      bool
	)
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Ask a running server a question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(opts)
			if err != nil {
				return err
			}
			stream, err := c.Chat(cmd.Context(), client.ChatRequest{
				Prompt:    strings.Join(args, " "),
				SMILES:    smiles,
				SessionID: sessionID,
			})
			if err != nil {
				return err
			}
			defer stream.Close()
			return renderChat(cmd.OutOrStdout(), stream, refs)
		},
	}
	cmd.Flags().StringVar(&smiles, "smiles", "", "molecule to ground the question on")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	cmd.Flags().BoolVar(&refs, "references", false, "print references after the answer")
	return cmd
}

// renderChat prints chunks as they arrive. A replace event reprints the
// answer from scratch on a new line since the terminal cannot be rewound.
func renderChat(w io.Writer, stream *client.ChatStream, refs bool) error {
	var meta *client.ChatMetadata
	for {
		ev, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch {
		case ev.Error != "":
			fmt.Fprintln(w)
			return fmt.Errorf("server error: %s", ev.Error)
		case ev.Metadata != nil:
			meta = ev.Metadata
		case ev.Replace:
			fmt.Fprint(w, "\n--- revised ---\n"+stream.Text())
		case ev.Done:
		default:
			fmt.Fprint(w, ev.Content)
		}
	}
	fmt.Fprintln(w)

	if meta == nil {
		return nil
	}
	if meta.SessionID != "" {
		fmt.Fprintf(w, "\nsession: %s\n", meta.SessionID)
	}
	if refs {
		for i, r := range meta.References {
			fmt.Fprintf(w, "[%d] %s %s\n", i+1, r.Title, r.URI)
		}
	}
	for _, q := range meta.RelatedQuestions {
		fmt.Fprintf(w, "related: %s\n", q)
	}
	return nil
}
