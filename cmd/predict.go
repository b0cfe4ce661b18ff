package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/eta/app"
	"github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/prediction"
	"github.com/kilianp07/eta/core/predlog"
	"github.com/kilianp07/eta/infra/logger"
	"github.com/kilianp07/eta/infra/mqtt"
)

var (
	predictRow     model.FeatureRow
	predictJSON    bool
	predictViaMQTT bool
	predictTimeout time.Duration
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Estimate the delivery time of one order",
	RunE:  runPredict,
}

func init() {
	f := predictCmd.Flags()
	f.Float64Var(&predictRow.DistanceKm, "distance", 0, "distance in km")
	f.StringVar(&predictRow.Weather, "weather", "", "weather")
	f.StringVar(&predictRow.TrafficLevel, "traffic", "", "traffic level")
	f.StringVar(&predictRow.TimeOfDay, "time-of-day", "", "time of day")
	f.StringVar(&predictRow.VehicleType, "vehicle", "", "vehicle type")
	f.IntVar(&predictRow.PreparationTimeMin, "preparation", 0, "preparation time in minutes")
	f.Float64Var(&predictRow.CourierExperienceYrs, "experience", 0, "courier experience in years")
	f.BoolVar(&predictJSON, "json", false, "print the response as JSON")
	f.BoolVar(&predictViaMQTT, "mqtt", false, "send the request to a running service over MQTT")
	f.DurationVar(&predictTimeout, "timeout", 0, "MQTT response timeout (defaults to mqtt.request_timeout_ms)")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, _ []string) error {
	var (
		res prediction.Response
		err error
	)
	if predictViaMQTT {
		res, err = predictRemote()
	} else {
		res, err = predictLocal(cmd.Context())
	}
	if err != nil {
		return err
	}
	return printPrediction(cmd.OutOrStdout(), res)
}

func predictLocal(ctx context.Context) (prediction.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := app.LoadPipeline(cfg)
	if err != nil {
		return prediction.Response{}, err
	}
	store, err := predlog.New(cfg.PredictionLog)
	if err != nil {
		return prediction.Response{}, err
	}
	defer func() { _ = store.Close() }()
	svc := prediction.NewService(p, logger.New("predict"),
		prediction.WithEnumerations(cfg.Features.PredictEnumerations()),
		prediction.WithRanges(cfg.Features.Ranges),
		prediction.WithStore(store))
	return svc.Predict(ctx, prediction.Request{Source: metrics.SourceCLI, Row: predictRow})
}

func predictRemote() (prediction.Response, error) {
	if !cfg.MQTT.Enabled() {
		return prediction.Response{}, fmt.Errorf("mqtt.broker is not configured")
	}
	r := predictRow
	row, err := model.NewFeatureRow(r.DistanceKm, r.Weather, r.TrafficLevel, r.TimeOfDay, r.VehicleType,
		r.PreparationTimeMin, r.CourierExperienceYrs, cfg.Features.PredictEnumerations())
	if err != nil {
		return prediction.Response{}, err
	}
	if err := cfg.Features.Ranges.Check(row); err != nil {
		return prediction.Response{}, err
	}
	mc := cfg.MQTT
	mc.ClientID = fmt.Sprintf("eta-cli-%d", time.Now().UnixNano())
	cli, err := mqtt.NewPahoClient(mc, nil)
	if err != nil {
		return prediction.Response{}, fmt.Errorf("mqtt client: %w", err)
	}
	defer cli.Disconnect()
	id, err := cli.SendRequest(row)
	if err != nil {
		return prediction.Response{}, err
	}
	timeout := predictTimeout
	if timeout <= 0 {
		timeout = time.Duration(mc.RequestTimeoutMS) * time.Millisecond
	}
	return cli.WaitForResponse(id, timeout)
}

func printPrediction(w io.Writer, res prediction.Response) error {
	if predictJSON {
		return writeJSON(w, res)
	}
	_, err := fmt.Fprintf(w, "Estimated delivery time: %s\n", res.Display)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
