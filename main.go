package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/kot-dispatch/adapter"
	"github.com/nixxel-company-limited/kot-dispatch/config"
	"github.com/nixxel-company-limited/kot-dispatch/dispatch"
	"github.com/nixxel-company-limited/kot-dispatch/receipt"
	"github.com/nixxel-company-limited/kot-dispatch/server"
	"github.com/nixxel-company-limited/kot-dispatch/store"
)

const usage = `usage: kot-dispatch <command> [flags]

commands:
  print   render an order and send it to the configured printers
  relay   forward raw jobs from a TCP port to a local USB printer
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "print":
		err = runPrint(ctx, args)
	case "relay":
		err = runRelay(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(name string, args []string, extra func(fs *pflag.FlagSet)) (config.Config, *zap.Logger, error) {
	fs := config.Flags(name)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return config.Config{}, nil, err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return config.Config{}, nil, err
	}

	var logger *zap.Logger
	if cfg.Log.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.Store.Path == "" {
		return store.NewMemStore()
	}
	return store.OpenBolt(cfg.Store.Path)
}

func runPrint(ctx context.Context, args []string) error {
	var (
		orderRef string
		cashier  string
		reprint  bool
	)
	cfg, logger, err := setup("print", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&orderRef, "order", "", "order JSON file, or the id of a stored order")
		fs.StringVar(&cashier, "cashier", "", "cashier name for the totals line")
		fs.BoolVar(&reprint, "reprint", false, "mark the ticket as a reprint")
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	if orderRef == "" {
		return errors.New("--order is required")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	orderID, err := loadOrder(ctx, st, orderRef)
	if err != nil {
		return err
	}

	payload, err := receipt.NewRenderer(cfg.Receipt).RenderOrder(ctx, st, orderID, receipt.Meta{
		Cashier: cashier,
		Reprint: reprint,
	})
	if err != nil {
		return err
	}

	transports := cfg.Transports()
	transports.Logger = logger
	coord := dispatch.New(st, dispatch.WithTransports(transports), dispatch.WithLogger(logger))

	msg, err := coord.Dispatch(ctx, orderID, payload, cfg.Settings())
	if status, statusErr := st.PrintStatus(ctx, orderID); statusErr == nil {
		logger.Info("print status",
			zap.Int64("order_id", orderID),
			zap.Bool("usb", status.USB),
			zap.Bool("network", status.Network),
		)
	}
	if err != nil {
		return err
	}

	fmt.Println(msg)
	return nil
}

// loadOrder resolves --order. A number refers to a stored order; anything
// else is read as an order JSON file and stored first.
func loadOrder(ctx context.Context, st store.Store, ref string) (int64, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return 0, fmt.Errorf("failed to read order: %w", err)
	}
	var order receipt.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return 0, fmt.Errorf("failed to parse order %s: %w", ref, err)
	}
	if err := st.PutOrder(ctx, order); err != nil {
		return 0, fmt.Errorf("failed to store order %d: %w", order.ID, err)
	}
	return order.ID, nil
}

func runRelay(ctx context.Context, args []string) error {
	cfg, logger, err := setup("relay", args, nil)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Server will listen", zap.String("address", cfg.Relay.Address))

	device, err := adapter.NewUSBAdapter(cfg.Relay.Device, cfg.Timeouts.Print, logger)
	if err != nil {
		return err
	}
	defer device.Close()

	svr := server.NewWithLogger(device, cfg.Relay.Address, logger)
	go func() {
		<-ctx.Done()
		svr.Stop()
	}()

	return svr.Start()
}
