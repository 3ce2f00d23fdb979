package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nikbrunner/drive/internal/browser"
	"github.com/nikbrunner/drive/internal/itemstore"
	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/picker"
	"github.com/nikbrunner/drive/internal/search"
)

// newLsCmd creates the 'ls' command.
func newLsCmd(s *session) *cobra.Command {
	var shared bool

	cmd := &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List a folder (your root by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := model.ScopeOwned
			if shared {
				scope = model.ScopeShared
			}
			var folderID *string
			if len(args) == 1 {
				folderID = &args[0]
			}

			items, err := itemstore.List(cmd.Context(), s.store, scope, folderID)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			printItems(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.Flags().BoolVar(&shared, "shared", false, "List items shared with you")
	return cmd
}

// newFindCmd creates the 'find' command: search, pick, download.
func newFindCmd(s *session) *cobra.Command {
	var shared bool
	var folderID string
	var output string

	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Search by name, pick a result and download it",
		Long: `Search by name and pick a result. A picked file is downloaded,
a picked folder prints its id.

Example:
  drive find report
  drive find "tax 2024" --folder XxYyZz -o ~/Downloads/tax.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			req := search.Request{Query: query, Scope: model.ScopeOwned, Limit: s.cfg.Search.Limit}
			if shared {
				req.Scope = model.ScopeShared
			}
			if folderID != "" {
				req.FolderID = &folderID
			}

			items, err := s.store.Search(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			results := rankAll(query, items)

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "No items found for '%s'\n", query)
				return nil
			}

			var selected *model.Item
			if len(results) == 1 {
				// Single result - select it directly
				selected = &results[0].Item
			} else {
				p := tea.NewProgram(picker.New(results, query),
					tea.WithInput(cmd.InOrStdin()),
					tea.WithOutput(cmd.ErrOrStderr()))
				finalModel, err := p.Run()
				if err != nil {
					return fmt.Errorf("run picker: %w", err)
				}
				selected = finalModel.(picker.Picker).Selected()
			}
			if selected == nil {
				return nil
			}

			if selected.IsFolder() {
				fmt.Fprintf(out, "%s/  %s\n", selected.Name, selected.ID)
				return nil
			}
			return s.download(cmd, selected.ID, output)
		},
	}

	cmd.Flags().BoolVar(&shared, "shared", false, "Search items shared with you")
	cmd.Flags().StringVar(&folderID, "folder", "", "Only search below this folder")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Download destination (default: the file's name)")
	return cmd
}

// rankAll orders items by fuzzy score. Items the store matched but the
// ranking did not (the server may match on more than names) keep their
// order at the end.
func rankAll(query string, items []model.Item) []search.Result {
	results := search.Rank(query, items, 0)
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.Item.ID] = true
	}
	for _, it := range items {
		if !seen[it.ID] {
			results = append(results, search.Result{Item: it})
		}
	}
	return results
}

// newGetCmd creates the 'get' command.
func newGetCmd(s *session) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Download a file",
		Long: `Download a file by id. Use -o - to write to stdout.

Example:
  drive get XxYyZz
  drive get XxYyZz -o photo.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.download(cmd, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (default: the file's name)")
	return cmd
}

// download writes the file's content to dest, or to its own name in the
// working directory when dest is empty.
func (s *session) download(cmd *cobra.Command, id, dest string) error {
	content, err := s.store.FetchContent(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer content.Body.Close()

	if dest == "-" {
		_, err := io.Copy(cmd.OutOrStdout(), content.Body)
		return err
	}
	if dest == "" {
		dest = filepath.Base(content.Filename)
		if dest == "." || dest == string(filepath.Separator) {
			dest = id
		}
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	n, err := io.Copy(f, content.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("download: %w", err)
	}

	s.log.Info("file downloaded", zap.String("id", id), zap.Int64("size", n))
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", dest, humanize.Bytes(uint64(n)))
	return nil
}

// newPutCmd creates the 'put' command.
func newPutCmd(s *session) *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("upload: %s is a directory", path)
			}

			item, err := itemstore.Upload(cmd.Context(), s.store, s.uploader, itemstore.UploadRequest{
				ParentID:  optional(parentID),
				Filename:  filepath.Base(path),
				MimeType:  browser.MimeType(path),
				SizeBytes: info.Size(),
			}, f)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s)  %s\n",
				item.Name, humanize.Bytes(uint64(info.Size())), item.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&parentID, "parent", "", "Parent folder id (default: your root)")
	return cmd
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd(s *session) *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return browser.ErrEmptyName
			}

			folder, err := s.store.CreateFolder(cmd.Context(), optional(parentID), name)
			if err != nil {
				return fmt.Errorf("create folder: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s/  %s\n", folder.Name, folder.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&parentID, "parent", "", "Parent folder id (default: your root)")
	return cmd
}

// newRmCmd creates the 'rm' command.
func newRmCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a file or a folder with everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.store.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

// newMvCmd creates the 'mv' command: rename, move, or both.
func newMvCmd(s *session) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "mv <id> [name]",
		Short: "Rename or move a file or folder",
		Long: `Rename an item, move it into another folder with --to, or both.
A folder cannot be moved into its own subtree.

Example:
  drive mv XxYyZz report-final.pdf
  drive mv XxYyZz --to AaBbCc`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			to = strings.TrimSpace(to)
			if len(args) == 1 && to == "" {
				return errors.New("mv: give a new name, --to, or both")
			}
			out := cmd.OutOrStdout()

			if len(args) == 2 {
				name := strings.TrimSpace(args[1])
				if name == "" {
					return browser.ErrEmptyName
				}
				item, err := s.store.Rename(cmd.Context(), id, name)
				if err != nil {
					return fmt.Errorf("rename: %w", err)
				}
				fmt.Fprintf(out, "renamed %s to %s\n", item.ID, item.Name)
			}

			if to != "" {
				if _, err := s.store.Move(cmd.Context(), id, to); err != nil {
					return fmt.Errorf("move: %w", err)
				}
				fmt.Fprintf(out, "moved %s into %s\n", id, to)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Destination folder id")
	return cmd
}

// newShareCmd creates the 'share' command.
func newShareCmd(s *session) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "share <id> <user>",
		Short: "Share a root item with another user",
		Long: `Share one of your root items with another user. Sharing again
changes the role.

Example:
  drive share XxYyZz bob --role editor`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := model.ParseShareRole(role)
			if err != nil {
				return err
			}
			target := strings.TrimSpace(args[1])
			if target == "" {
				return errors.New("share: user cannot be empty")
			}

			if err := s.store.Share(cmd.Context(), args[0], target, r); err != nil {
				return fmt.Errorf("share: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shared %s with %s as %s\n",
				args[0], target, strings.ToLower(r.String()))
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "viewer", "Access level: viewer or editor")
	return cmd
}

// newMeCmd creates the 'me' command.
func newMeCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := s.store.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("me: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), me.UserID)
			return nil
		},
	}
}

// printItems writes one line per item: id, kind, size, name.
func printItems(w io.Writer, items []model.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	for _, it := range items {
		size := "-"
		name := it.Name
		if it.IsFolder() {
			name += "/"
		} else if n := it.Size(); n >= 0 {
			size = humanize.Bytes(uint64(n))
		}
		fmt.Fprintf(w, "%s  %-6s  %8s  %s\n", it.ID, strings.ToLower(it.Kind.String()), size, name)
	}
}

func optional(id string) *string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return &id
}
