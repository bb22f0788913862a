package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pders01/signally/internal/cache"
	"github.com/pders01/signally/internal/config"
	"github.com/pders01/signally/internal/history"
	"github.com/pders01/signally/internal/quota"
	"github.com/pders01/signally/internal/storage"
)

var (
	generatePath string
	searchLimit  int
)

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := generatePath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.GenerateDefaultConfig(path); err != nil {
			return fmt.Errorf("generating config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration at: %s\n", path)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [provider...]",
	Short: "Show persisted quota usage and cached values",
	Long: `status reads the state database and prints the quota usage of every
provider and the cached values. Naming providers limits the output to them.
The display loop holds the database lock while it runs, so status waits up
to storage.timeout for it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		providers, err := selectProviders(cfg.Providers, args)
		if err != nil {
			return err
		}
		store, err := storage.NewStore(cfg.Storage.Path, cfg.Storage.Timeout)
		if err != nil {
			return err
		}
		defer store.Close()

		quotas, err := loadQuotas(store, args)
		if err != nil {
			return err
		}
		entries, err := store.CacheEntries()
		if err != nil {
			return err
		}
		entries = filterEntries(entries, args)
		writeStatus(cmd.OutOrStdout(), providers, quotas, entries, time.Now())
		return nil
	},
}

// selectProviders returns the providers named in ids, in config order, or
// all of them when ids is empty.
func selectProviders(all []config.ProviderConfig, ids []string) ([]config.ProviderConfig, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]config.ProviderConfig, len(all))
	for _, pc := range all {
		byID[pc.ID] = pc
	}
	out := make([]config.ProviderConfig, 0, len(ids))
	for _, id := range ids {
		pc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown provider %q", config.ErrConfig, id)
		}
		out = append(out, pc)
	}
	return out, nil
}

// loadQuotas reads the persisted quota state of the named providers, or of
// every provider when ids is empty. A provider that never called has no
// entry.
func loadQuotas(store *storage.Store, ids []string) (map[string]quota.State, error) {
	if len(ids) == 0 {
		return store.AllQuotas()
	}
	quotas := make(map[string]quota.State, len(ids))
	for _, id := range ids {
		st, err := store.GetQuota(id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		quotas[id] = st
	}
	return quotas, nil
}

// filterEntries keeps the cache entries of the named providers.
func filterEntries(entries []cache.Entry, ids []string) []cache.Entry {
	if len(ids) == 0 {
		return entries
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	var out []cache.Entry
	for _, e := range entries {
		if keep[cache.ProviderOf(e.Key)] {
			out = append(out, e)
		}
	}
	return out
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect what the display has shown",
}

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over displayed lines",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.History.Index == "" {
			return fmt.Errorf("%w: history.index is not configured", config.ErrConfig)
		}
		idx, err := history.OpenIndex(cfg.History.Index, cfg.History.IndexBatch)
		if err != nil {
			return err
		}
		defer idx.Close()

		hits, err := idx.Search(strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		writeHits(cmd.OutOrStdout(), hits)
		return nil
	},
}

func init() {
	generateConfigCmd.Flags().StringVarP(&generatePath, "output", "o", "", "Where to write the config (default "+config.DefaultPath()+")")
	historySearchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")
	historyCmd.AddCommand(historySearchCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	staleStyle  = cellStyle.Foreground(lipgloss.Color("#FF6B6B"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#95E1D3"))
)

func writeStatus(out io.Writer, providers []config.ProviderConfig, quotas map[string]quota.State, entries []cache.Entry, now time.Time) {
	qt := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("PROVIDER", "WINDOW", "CALLS", "REMAINING", "LAST CALL").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	tracker := quota.NewTracker()
	for _, pc := range providers {
		if pc.Disabled {
			continue
		}
		desc, err := pc.Descriptor()
		if err != nil {
			qt.Row(pc.ID, "invalid", "-", "-", err.Error())
			continue
		}
		tracker.Track(desc, now)
		if st, ok := quotas[pc.ID]; ok {
			tracker.Restore(pc.ID, st)
			tracker.ResetIfNewDay(pc.ID, now)
		}
		st, _ := tracker.Snapshot(pc.ID)

		last := "never"
		if st.Called() {
			last = st.LastCallAt.Local().Format("Jan 02 15:04:05")
		}
		qt.Row(pc.ID, desc.Window.String(),
			strconv.Itoa(st.CallsToday),
			strconv.Itoa(tracker.Remaining(pc.ID)),
			last)
	}
	fmt.Fprintln(out, titleStyle.Render("Quota"))
	fmt.Fprintln(out, qt.Render())

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	fresh := make([]bool, len(entries))
	ct := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("KEY", "VALUE", "AGE").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(fresh) && !fresh[row]:
				return staleStyle
			default:
				return cellStyle
			}
		})
	for i, e := range entries {
		fresh[i] = e.Fresh(now)
		ct.Row(e.Key, e.Value, now.Sub(e.FetchedAt).Truncate(time.Second).String())
	}
	fmt.Fprintln(out, titleStyle.Render("Cache"))
	if len(entries) == 0 {
		fmt.Fprintln(out, "  (empty)")
		return
	}
	fmt.Fprintln(out, ct.Render())
}

func writeHits(out io.Writer, hits []history.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(out, "no matches")
		return
	}
	for _, h := range hits {
		fmt.Fprintln(out, h.Text())
	}
}
