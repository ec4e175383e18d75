package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lepinkainen/shelfscan/internal/csvutil"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	shelferrors "github.com/lepinkainen/shelfscan/internal/errors"
	"github.com/lepinkainen/shelfscan/internal/scan"
)

// ScanCmd represents the scan command
type ScanCmd struct {
	Codes []string `arg:"" optional:"" help:"Codes to scan. Reads one code per line from stdin when no codes or --file are given"`
	File  string   `short:"f" help:"CSV file with a code, barcode, isbn, ean or upc column"`
	Batch bool     `short:"b" help:"Process codes in the background while reading input"`
	Type  string   `help:"Item type for every code: book, magazine or product"`
}

type scanInput struct {
	code     string
	itemType product.ItemType
}

func (s *ScanCmd) inputs() ([]scanInput, error) {
	defaultType := product.ParseItemType(s.Type)
	if s.Type != "" && defaultType == "" {
		return nil, fmt.Errorf("unknown item type %q", s.Type)
	}

	if len(s.Codes) > 0 {
		out := make([]scanInput, len(s.Codes))
		for i, c := range s.Codes {
			out[i] = scanInput{code: c, itemType: defaultType}
		}
		return out, nil
	}

	if s.File != "" {
		rows, err := csvutil.ReadScanList(s.File)
		if err != nil {
			return nil, err
		}
		out := make([]scanInput, len(rows))
		for i, r := range rows {
			t := defaultType
			if t == "" {
				t = product.ParseItemType(r.Type)
			}
			out[i] = scanInput{code: r.Code, itemType: t}
		}
		return out, nil
	}

	var out []scanInput
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, scanInput{code: line, itemType: defaultType})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read codes: %w", err)
	}
	return out, nil
}

func (s *ScanCmd) Run() error {
	inputs, err := s.inputs()
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no codes to scan (pass codes as arguments, --file, or on stdin)")
	}

	ctx := context.Background()

	var (
		mu     sync.Mutex
		failed int
	)
	emit := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintln(stdout, line)
	}

	app, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("Failed to close application", "error", err)
		}
	}()

	owner := app.Config.Owner
	sink := scan.EventSinkFunc(func(e scan.Event) {
		if e.Err != nil {
			mu.Lock()
			failed++
			mu.Unlock()
			emit(renderScanError(e.Code.Digits, e.Err))
			return
		}
		res := e.Result
		emit(renderOutcome(scan.Outcome{Code: e.Code, Status: scan.StatusProcessed, Result: &res}))
	})

	session := scan.NewSession(app.Pipeline,
		scan.WithDuplicateWindow(app.Config.Scan.DuplicateWindow),
		scan.WithTasks(app.Pool),
		scan.WithEventSink(sink),
	)

	if s.Batch {
		// Per-row types from a CSV are not applied in batch mode.
		opts := scan.StartOptions{Owner: owner, Mode: scan.Batch, Type: product.ParseItemType(s.Type)}
		if err := session.Start(opts); err != nil {
			return err
		}
	}

	for _, in := range inputs {
		if !s.Batch && session.State() == scan.Idle {
			if err := session.Start(scan.StartOptions{Owner: owner, Mode: scan.SingleShot, Type: in.itemType}); err != nil {
				return err
			}
		}

		out, err := session.Submit(ctx, in.code)
		if shelferrors.IsStopProcessingError(err) {
			break
		}
		if err != nil {
			mu.Lock()
			failed++
			mu.Unlock()
			emit(renderScanError(in.code, err))
			continue
		}
		// Batch results arrive through the sink.
		if out.Status != scan.StatusDispatched {
			emit(renderOutcome(out))
		}
	}

	session.Stop()
	// Drain background work before reporting.
	app.Pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if failed > 0 {
		return fmt.Errorf("%d of %d codes failed", failed, len(inputs))
	}
	return nil
}
