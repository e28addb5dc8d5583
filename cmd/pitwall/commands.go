package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/pitwall-bot/pitwall/internal/config"
	"github.com/pitwall-bot/pitwall/internal/openf1"
	"github.com/pitwall-bot/pitwall/internal/server"
	"github.com/pitwall-bot/pitwall/internal/telemetry"
	"github.com/pitwall-bot/pitwall/internal/timing"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const notAvailableMessage = "Session not available yet"

func runServe(cctx *cli.Context) error {
	return withBackend(cctx, func(b *backend) error {
		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if b.cfg.Refresh.Enabled {
			interval, err := b.cfg.GetRefreshInterval()
			if err != nil {
				return fmt.Errorf("invalid refresh interval: %w", err)
			}
			go telemetry.NewRefresher(b.source, interval).Run(ctx)
		}

		return server.New(b.cfg, b.source).Start(ctx)
	})
}

func runLiveTiming(cctx *cli.Context) error {
	extras, err := timing.ParseExtras(cctx.StringSlice("extras"))
	if err != nil {
		return err
	}

	return withBackend(cctx, func(b *backend) error {
		lt, found, err := timing.BuildLiveTiming(cctx.Context, b.source, timing.LiveTimingRequest{
			Year:        cctx.Int("year"),
			Location:    cctx.String("location"),
			SessionName: cctx.String("session"),
			Extras:      extras,
		})
		if err != nil {
			return err
		}
		if !found {
			fmt.Println(notAvailableMessage)
			return nil
		}

		if cctx.Bool("json") {
			return printJSON(os.Stdout, lt.Rows())
		}
		return printLiveTiming(os.Stdout, lt.Rows(), extras)
	})
}

func runHead2Head(cctx *cli.Context) error {
	return withBackend(cctx, func(b *backend) error {
		c, found, err := timing.BuildComparison(cctx.Context, b.source, timing.ComparisonRequest{
			Year:        cctx.Int("year"),
			Location:    cctx.String("location"),
			SessionName: cctx.String("session"),
			Driver1:     cctx.Int("driver1"),
			Driver2:     cctx.Int("driver2"),
			NumLaps:     cctx.Int("laps"),
		})
		if err != nil {
			return err
		}
		if !found {
			fmt.Println(notAvailableMessage)
			return nil
		}

		if cctx.Bool("json") {
			return printJSON(os.Stdout, c)
		}
		fmt.Println(c.IntervalSummary())
		return printComparison(os.Stdout, c)
	})
}

func runEvents(cctx *cli.Context) error {
	return withBackend(cctx, func(b *backend) error {
		events, err := b.source.Events(cctx.Context, cctx.Int("year"))
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tLOCATION\tEVENT")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.DateStart.Format("2006-01-02"), e.Location, e.MeetingName)
		}
		return tw.Flush()
	})
}

func runRefresh(cctx *cli.Context) error {
	return withBackend(cctx, func(b *backend) error {
		year := cctx.Int("year")
		n, err := b.source.RefreshEvents(cctx.Context, year)
		if err != nil {
			return err
		}
		logrus.Infof("Upserted %d grand prix locations for %d", n, year)
		return nil
	})
}

func runConfig(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	out, err := cfg.Dump()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printLiveTiming(w io.Writer, rows []timing.Row, extras []timing.Extra) error {
	has := make(map[timing.Extra]bool, len(extras))
	for _, e := range extras {
		has[e] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "POS\tNO.\tDRIVER\tTEAM"
	if has[timing.ExtraIntervals] {
		header += "\tINTERVAL\tGAP"
	}
	if has[timing.ExtraPitStops] {
		header += "\tPITS"
	}
	if has[timing.ExtraTyres] {
		header += "\tTYRE\tAGE"
	}
	fmt.Fprintln(tw, header)

	for _, r := range rows {
		line := fmt.Sprintf("%s\t%d\t%s\t%s", optional(r.Position, r.Position != 0), r.DriverNumber, r.Name, r.Team)
		if has[timing.ExtraIntervals] {
			line += "\t" + gapText(r.Interval) + "\t" + gapText(r.GapToLeader)
		}
		if has[timing.ExtraPitStops] {
			line += "\t" + optionalPtr(r.PitStops)
		}
		if has[timing.ExtraTyres] {
			line += "\t" + r.TyreCompound + "\t" + optionalPtr(r.TyreAge)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func printComparison(w io.Writer, c timing.Comparison) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "LAP\tDRIVER\tS1\tS2\tS3\tTOTAL\t")
	for i, lap := range c.Laps {
		for d := 0; d < 2; d++ {
			s := c.SectorTimes[d][i]
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t\n", lap, c.DriverNames[d], s[0], s[1], s[2], c.LapTimes[d][i])
		}
	}
	return tw.Flush()
}

func optional(v int, ok bool) string {
	if !ok {
		return timing.NotAvailableText
	}
	return strconv.Itoa(v)
}

func optionalPtr(v *int) string {
	if v == nil {
		return timing.NotAvailableText
	}
	return strconv.Itoa(*v)
}

func gapText(g *openf1.Gap) string {
	if g == nil {
		return timing.NotAvailableText
	}
	if s := g.String(); s != "" {
		return s
	}
	return timing.NotAvailableText
}
