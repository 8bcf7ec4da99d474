package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gogpu/stackview"
)

var playCmd = &cobra.Command{
	Use:   "play STUDY",
	Short: "Step through a study as a cine loop",
	Long: `Play shows every image of a study in turn at the requested rate, the way a
user scrolls through a stack, while preloading neighbours and sampling
performance. With --metrics-addr the session's metrics are served for
Prometheus.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().Float64("rate", 10, "images per second")
	playCmd.Flags().Bool("loop", false, "restart at the first image until interrupted")
	playCmd.Flags().String("metrics-addr", "", "serve metrics on this address (e.g. :9090)")
	_ = vp.BindPFlag("metrics.addr", playCmd.Flags().Lookup("metrics-addr"))
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rate, _ := cmd.Flags().GetFloat64("rate")
	loop, _ := cmd.Flags().GetBool("loop")
	if rate <= 0 {
		return errors.New("rate must be positive")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if config.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              config.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				stackview.Logger().Error("metrics server failed", "addr", srv.Addr, "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	v, err := openStudy(ctx, args[0], stackview.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer v.Close()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	n := v.Study().Len()
	shown := 1
play:
	for {
		select {
		case <-ctx.Done():
			break play
		case <-ticker.C:
		}
		i := v.Current() + 1
		if i >= n {
			if !loop {
				_ = v.Wait(ctx)
				break play
			}
			i = 0
		}
		if err := v.Show(i); err != nil {
			return err
		}
		shown++
	}
	report(cmd, v, shown)
	return nil
}

func report(cmd *cobra.Command, v *stackview.Viewer, shown int) {
	st := v.Stats()
	w := cmd.OutOrStdout()
	printer.Fprintf(w, "session    %s\n", st.Session)
	printer.Fprintf(w, "shown      %d images\n", shown)
	printer.Fprintf(w, "draws      %d (last %s)\n", st.Render.Draws, st.Render.LastRender)
	printer.Fprintf(w, "cache      %s of %s in %d entries (%.1f%%)\n",
		humanize.IBytes(uint64(st.Cache.TotalBytes)),
		humanize.IBytes(uint64(st.Cache.MaxBytes)),
		st.Cache.ItemCount, st.Cache.UsagePercent())
	printer.Fprintf(w, "fps        %.1f\n", st.Sample.FPS)
	printer.Fprintf(w, "optimized  %t\n", st.Optimized)
	printer.Fprintf(w, "connection %s\n", st.Connection)
}
