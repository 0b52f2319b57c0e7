package plugins

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kantek-org/kantek/plugin"
	"github.com/kantek-org/kantek/reputation"
	"github.com/kantek-org/kantek/store"

	"golang.org/x/sync/errgroup"
)

// Bans mirrored to the reputation service per request.
const mirrorBatchSize = 50

func handleBanlist(c *plugin.Context) error {
	args, err := ParseArgs(commandArgs(c.Event.RawText()))
	if err != nil {
		c.Notify(err.Error())
		return err
	}
	if len(args.Positional) == 0 {
		c.Notify("Usage: banlist query|import|export")
		return plugin.Validationf("missing banlist subcommand")
	}
	sub := args.Positional[0]
	rest := Args{Keywords: args.Keywords, Positional: args.Positional[1:]}
	switch sub {
	case "query", "q":
		return banlistQuery(c, rest)
	case "import", "i":
		return banlistImport(c, rest)
	case "export", "e":
		return banlistExport(c, rest)
	default:
		c.Notify(fmt.Sprintf("Unknown subcommand %q.", sub))
		return plugin.Validationf("unknown banlist subcommand %q", sub)
	}
}

func banlistQuery(c *plugin.Context, args Args) error {
	st := c.Env.Store
	if ids := args.IDs(); len(ids) > 0 {
		recs, err := st.QueryBans(c.Ctx, ids)
		if err != nil {
			return err
		}
		var sb strings.Builder
		if len(recs) == 0 {
			sb.WriteString("None of the users are banned.\n")
		} else {
			sb.WriteString("Query Results\n")
			for _, r := range recs {
				fmt.Fprintf(&sb, "  %d: %s\n", r.ID, r.Reason)
			}
		}
		if rc := c.Env.Reputation; rc != nil {
			sb.WriteString("SpamWatch\n")
			for _, id := range ids {
				ban, err := rc.GetBan(c.Ctx, id)
				switch {
				case err != nil:
					c.Logger.Warn("reputation service lookup failed", "id", id, "err", err)
					fmt.Fprintf(&sb, "  %d: lookup failed\n", id)
				case ban == nil:
					fmt.Fprintf(&sb, "  %d: not banned\n", id)
				default:
					fmt.Fprintf(&sb, "  %d: %s\n", id, ban.Reason)
				}
			}
		}
		text := sb.String()
		if len(recs) == 0 && c.Env.Reputation == nil {
			text = strings.TrimSpace(text)
		}
		_, err = c.Respond(text)
		return err
	}

	reason := args.Keywords["reason"]
	count, err := st.CountBans(c.Ctx, reason)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Total bans: %d", count)
	if reason != "" {
		text = fmt.Sprintf("Bans with reason %q: %d", reason, count)
	}
	_, err = c.Respond(text)
	return err
}

// Reads a ban list CSV with a header row. The first column is the user ID and the last column the reason.
func ReadBanCSV(r io.Reader) ([]store.BanRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	var recs []store.BanRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("csv row %v: need an id and a reason", row)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("csv row %v: bad id: %w", row, err)
		}
		recs = append(recs, store.BanRecord{ID: id, Reason: row[len(row)-1]})
	}
	return recs, nil
}

func WriteBanCSV(ctx context.Context, w io.Writer, bans store.BanStore) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "reason"}); err != nil {
		return 0, err
	}
	n := 0
	err := bans.AllBans(ctx, func(r store.BanRecord) error {
		n++
		return cw.Write([]string{strconv.FormatInt(r.ID, 10), r.Reason})
	})
	if err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

func banlistImport(c *plugin.Context, args Args) error {
	if len(args.Positional) == 0 {
		c.Notify("Usage: banlist import <file.csv>")
		return plugin.Validationf("missing import file")
	}
	path := args.Positional[0]
	f, err := os.Open(path)
	if err != nil {
		c.Notify(fmt.Sprintf("Could not open %s.", path))
		return plugin.Validationf("opening import file: %v", err)
	}
	defer f.Close()

	recs, err := ReadBanCSV(f)
	if err != nil {
		c.Notify("Could not parse the ban list.")
		return plugin.Validationf("%v", err)
	}

	waiting, err := c.Respond("Importing bans. This might take a while.")
	if err != nil {
		c.Logger.Warn("failed to send progress message", "err", err)
	}
	start := time.Now()
	if err := c.Env.Store.ImportBans(c.Ctx, recs); err != nil {
		return err
	}
	for _, r := range recs {
		if c.Env.Engine != nil {
			c.Env.Engine.ForgetBan(c.Ctx, r.ID)
		}
	}

	var mirrorErr error
	if c.Env.Reputation.CanWrite() {
		mirrorErr = mirrorBans(c.Ctx, c.Env.Reputation, recs)
		if mirrorErr != nil {
			c.Logger.Warn("failed to mirror imported bans", "err", mirrorErr)
		}
	}

	if waiting != 0 {
		if err := c.Env.Client.DeleteMessage(c.Ctx, c.Event.ChatID, waiting); err != nil {
			c.Logger.Debug("could not delete progress message", "err", err)
		}
	}
	c.Logger.Info("imported bans", "count", len(recs), "duration", time.Since(start))
	_, err = c.Respond(fmt.Sprintf("Imported %d bans. Took %.2fs", len(recs), time.Since(start).Seconds()))
	return errors.Join(err, mirrorErr)
}

// Sends the records to the reputation service, grouped by reason, in batches.
func mirrorBans(ctx context.Context, rc *reputation.Client, recs []store.BanRecord) error {
	byReason := map[string][]reputation.Ban{}
	var order []string
	for _, r := range recs {
		if _, ok := byReason[r.Reason]; !ok {
			order = append(order, r.Reason)
		}
		byReason[r.Reason] = append(byReason[r.Reason], reputation.Ban{ID: r.ID, Reason: r.Reason})
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, reason := range order {
		bans := byReason[reason]
		for i := 0; i < len(bans); i += mirrorBatchSize {
			batch := bans[i:min(i+mirrorBatchSize, len(bans))]
			eg.Go(func() error {
				return rc.AddBans(ctx, batch)
			})
		}
	}
	return eg.Wait()
}

func banlistExport(c *plugin.Context, args Args) error {
	path := "banlist_export.csv"
	if len(args.Positional) > 0 {
		path = args.Positional[0]
	}
	start := time.Now()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	n, err := WriteBanCSV(c.Ctx, f, c.Env.Store)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("exporting ban list: %w", err)
	}
	_, err = c.Respond(fmt.Sprintf("Exported %d bans to %s. Took %.2fs", n, path, time.Since(start).Seconds()))
	return err
}
