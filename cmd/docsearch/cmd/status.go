package cmd

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/index"
	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		indexDir   string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the index contains",
		Long: `Show the index backend, size, model and sections, read from the
artifacts on disk. Nothing is embedded and no provider is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if indexDir != "" {
				cfg.Index.Dir = indexDir
			}

			info := collectStatus(cfg.Index.Dir, store.Load(cfg.Index.Dir, hnswConfig(cfg)))
			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return renderer.RenderJSON(info)
			}
			return renderer.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&indexDir, "index", "", "Index directory (default: index.dir)")

	return cmd
}

func collectStatus(dir string, ix *store.Index) ui.StatusInfo {
	info := ui.StatusInfo{Dir: dir, Loaded: ix.Loaded()}

	info.Artifacts = map[string]int64{}
	for _, name := range append(store.ArtifactFiles(), index.CacheFile) {
		if st, err := os.Stat(filepath.Join(dir, name)); err == nil {
			info.Artifacts[name] = st.Size()
			info.TotalSize += st.Size()
		}
	}

	if !ix.Loaded() {
		return info
	}

	m := ix.Manifest()
	info.Backend = string(ix.Backend())
	info.Chunks = ix.Count()
	info.Dim = ix.Dim()
	info.Model = m.Model
	info.BuildID = m.BuildID
	info.CreatedAt = m.CreatedAt

	seen := map[string]bool{}
	for id := range ix.Count() {
		if meta, ok := ix.Metadata(int64(id)); ok && !seen[meta.Section] {
			seen[meta.Section] = true
			info.Sections = append(info.Sections, meta.Section)
		}
	}
	sort.Strings(info.Sections)
	return info
}
