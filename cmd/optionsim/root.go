package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quantlab/optionsim/internal/config"
	"github.com/quantlab/optionsim/internal/pipeline"
	"github.com/quantlab/optionsim/marketdata"
	"github.com/quantlab/optionsim/pricing"
	"github.com/quantlab/optionsim/types"
)

var rootCmd = &cobra.Command{
	Use:   "optionsim",
	Short: "Simulated options-trading backend",
	Long: `optionsim runs a simulated options-trading backend: an order
management subsystem, a stochastic execution engine, and a portfolio risk
evaluator wired to a synthetic market-data feed.`,
	RunE: runSimulation,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(cfg.ZerologLevel())
	log.Logger = logger

	feed := marketdata.NewSyntheticFeed("AAPL", 150, cfg.RiskFreeRate, cfg.DefaultVolatility,
		[]float64{140, 145, 150, 155, 160}, 0.5)

	p := pipeline.New(cfg.RiskRefreshPeriod, feed)
	p.SetLogger(logger)
	if err := p.SetSimulatedSlippage(cfg.SimulatedSlippage); err != nil {
		return fmt.Errorf("configuring slippage: %w", err)
	}
	if err := p.SetSimulatedFillRate(cfg.SimulatedFillRate); err != nil {
		return fmt.Errorf("configuring fill rate: %w", err)
	}
	if err := p.Risk.SetRiskLimits(cfg.RiskLimits); err != nil {
		return fmt.Errorf("configuring risk limits: %w", err)
	}

	logger.Info().Msg("starting options simulation backend")
	p.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Warn().Msg("shutdown signal received")
	p.Stop()
	logger.Info().Msg("shutdown complete")
	return nil
}

var priceFlags struct {
	spot   float64
	strike float64
	rate   float64
	vol    float64
	expiry float64
	put    bool
}

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price a single European option and print its Greeks",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := types.OptionParameters{
			Spot:         priceFlags.spot,
			Strike:       priceFlags.strike,
			RiskFreeRate: priceFlags.rate,
			Volatility:   priceFlags.vol,
			TimeToExpiry: priceFlags.expiry,
			IsCall:       !priceFlags.put,
		}
		price, err := pricing.Price(params)
		if err != nil {
			return err
		}
		greeks, err := pricing.CalculateGreeks(params)
		if err != nil {
			return err
		}
		fmt.Printf("price=%.4f delta=%.4f gamma=%.4f theta=%.4f vega=%.4f rho=%.4f\n",
			price, greeks.Delta, greeks.Gamma, greeks.Theta, greeks.Vega, greeks.Rho)
		return nil
	},
}

var submitFlags struct {
	underlying string
	optionType string
	strike     float64
	expiry     string
	side       string
	orderType  string
	limitPrice float64
	quantity   int64
	timeout    time.Duration
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a single order against a throwaway pipeline and report its terminal status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		p := pipeline.New(0)
		if err := p.SetSimulatedSlippage(cfg.SimulatedSlippage); err != nil {
			return err
		}
		if err := p.SetSimulatedFillRate(cfg.SimulatedFillRate); err != nil {
			return err
		}
		p.Start()
		defer p.Stop()

		order := types.OptionOrder{
			Underlying: submitFlags.underlying,
			OptionType: submitFlags.optionType,
			Strike:     decimal.NewFromFloat(submitFlags.strike),
			Expiry:     submitFlags.expiry,
			Side:       types.OrderSide(submitFlags.side),
			OrderType:  types.OrderType(submitFlags.orderType),
			LimitPrice: decimal.NewFromFloat(submitFlags.limitPrice),
			Quantity:   submitFlags.quantity,
		}

		orderID, err := p.Submit(order)
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}

		deadline := time.Now().Add(submitFlags.timeout)
		for time.Now().Before(deadline) {
			status := p.OMS.GetOrderStatus(orderID)
			if status.Status != types.Pending {
				fmt.Printf("order_id=%s status=%s fill_price=%s\n", orderID, status.Status, status.FillPrice)
				return nil
			}
			time.Sleep(25 * time.Millisecond)
		}
		fmt.Printf("order_id=%s status=PENDING (timed out waiting for a terminal state)\n", orderID)
		return nil
	},
}

func init() {
	priceCmd.Flags().Float64VarP(&priceFlags.spot, "spot", "s", 100, "underlying spot price")
	priceCmd.Flags().Float64VarP(&priceFlags.strike, "strike", "k", 100, "strike price")
	priceCmd.Flags().Float64VarP(&priceFlags.rate, "rate", "r", 0.05, "risk-free rate")
	priceCmd.Flags().Float64VarP(&priceFlags.vol, "vol", "v", 0.2, "volatility")
	priceCmd.Flags().Float64VarP(&priceFlags.expiry, "expiry", "t", 1.0, "time to expiry in years")
	priceCmd.Flags().BoolVar(&priceFlags.put, "put", false, "price a put instead of a call")
	rootCmd.AddCommand(priceCmd)

	submitCmd.Flags().StringVar(&submitFlags.underlying, "underlying", "AAPL", "underlying ticker")
	submitCmd.Flags().StringVar(&submitFlags.optionType, "type", "CALL", "CALL or PUT")
	submitCmd.Flags().Float64Var(&submitFlags.strike, "strike", 150, "strike price")
	submitCmd.Flags().StringVar(&submitFlags.expiry, "expiry", time.Now().AddDate(0, 6, 0).Format("2006-01-02"), "expiry date, YYYY-MM-DD")
	submitCmd.Flags().StringVar(&submitFlags.side, "side", string(types.BuyToOpen), "BUY_TO_OPEN, SELL_TO_OPEN, BUY_TO_CLOSE, or SELL_TO_CLOSE")
	submitCmd.Flags().StringVar(&submitFlags.orderType, "order-type", string(types.Market), "MARKET, LIMIT, STOP, or STOP_LIMIT")
	submitCmd.Flags().Float64Var(&submitFlags.limitPrice, "limit-price", 1.0, "limit price (also the reference price for a MARKET order's simulated fill)")
	submitCmd.Flags().Int64Var(&submitFlags.quantity, "quantity", 1, "signed contract quantity; positive buys, negative sells")
	submitCmd.Flags().DurationVar(&submitFlags.timeout, "timeout", 2*time.Second, "how long to wait for a terminal order status")
	rootCmd.AddCommand(submitCmd)
}
