package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artpar/cardsync/internal/core"
)

func checkOutput(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or yaml)", format)
	}
}

// render writes v as JSON or YAML, or calls text for human output.
func render(cmd *cobra.Command, format string, v any, text func(out io.Writer)) error {
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	default:
		text(out)
		return nil
	}
}

func printEntity(out io.Writer, e core.Entity) {
	fmt.Fprintf(out, "%q\n", e.Content)
	if e.Author != "" {
		fmt.Fprintf(out, "  -- %s\n", e.Author)
	}

	var marks []string
	if e.IsFavorited {
		marks = append(marks, "favorited")
	}
	if e.IsLiked {
		marks = append(marks, "liked")
	}

	kind := core.KindNames[e.Kind]
	if kind == "" {
		kind = string(e.Kind)
	}
	fmt.Fprintf(out, "[%s] id=%s likes=%d favorites=%d", kind, e.ID, e.Likes, e.Favorites)
	if len(marks) > 0 {
		fmt.Fprintf(out, " (%s)", strings.Join(marks, ", "))
	}
	fmt.Fprintln(out)
}
