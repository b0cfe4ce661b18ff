package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/eta/core/dataset"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/pipeline"
	"github.com/kilianp07/eta/core/prediction"
	"github.com/kilianp07/eta/core/predlog"
)

// setupWorkspace writes a dataset following 8 + 2.5*distance minutes and a
// config file pointing every path into a temp dir.
func setupWorkspace(t *testing.T) (cfgFile, dir string) {
	t.Helper()
	dir = t.TempDir()
	rng := rand.New(rand.NewSource(5))
	enums := model.DefaultEnumerations()
	var b strings.Builder
	b.WriteString("Order_ID;Distance_km;Weather;Traffic_Level;Time_of_Day;Vehicle_Type;Preparation_Time_min;Courier_Experience_yrs;Delivery_Time_min\n")
	for i := 0; i < 100; i++ {
		d := rng.Float64() * 20
		fmt.Fprintf(&b, "%d;%s;%s;%s;%s;%s;%d;%d;%.2f\n", i,
			strings.Replace(fmt.Sprintf("%.2f", d), ".", ",", 1),
			enums.Weather[rng.Intn(len(enums.Weather))],
			enums.TrafficLevel[rng.Intn(len(enums.TrafficLevel))],
			enums.TimeOfDay[rng.Intn(len(enums.TimeOfDay))],
			enums.VehicleType[rng.Intn(len(enums.VehicleType))],
			rng.Intn(30), rng.Intn(10), 8+2.5*d+rng.NormFloat64()*0.5)
	}
	data := filepath.Join(dir, "delivery.csv")
	require.NoError(t, os.WriteFile(data, []byte(b.String()), 0o644))

	cfgFile = filepath.Join(dir, "config.yaml")
	yml := fmt.Sprintf(`data:
  path: %s
model:
  path: %s
prediction_log:
  backend: jsonl
  path: %s
logging:
  level: error
`, data, filepath.Join(dir, "models", "pipeline.json"), filepath.Join(dir, "predictions.jsonl"))
	require.NoError(t, os.WriteFile(cfgFile, []byte(yml), 0o644))
	return cfgFile, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// flag variables outlive a single Execute
	predictJSON, predictViaMQTT = false, false
	describeXLSX, describeHTML = "", ""
	trainData, trainOutput, trainFormat = "", "", "text"
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTrainPredictAndList(t *testing.T) {
	cfgFile, dir := setupWorkspace(t)

	out, err := execute(t, "-c", cfgFile, "train", "--format", "json")
	require.NoError(t, err)
	var rep pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 80, rep.TrainRows)
	assert.Equal(t, 20, rep.TestRows)
	assert.FileExists(t, filepath.Join(dir, "models", "pipeline.json"))

	out, err = execute(t, "-c", cfgFile, "predict",
		"--distance", "10", "--weather", "Clear", "--traffic", "Low",
		"--time-of-day", "Morning", "--vehicle", "Bike",
		"--preparation", "10", "--experience", "2", "--json")
	require.NoError(t, err)
	var res prediction.Response
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 33, res.Minutes, 2)
	assert.True(t, strings.HasSuffix(res.Display, " minutes"))
	assert.NotEmpty(t, res.RequestID)

	out, err = execute(t, "-c", cfgFile, "predictions", "ls", "--format", "json")
	require.NoError(t, err)
	var recs []predlog.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "cli", recs[0].Source)
	assert.Equal(t, res.RequestID, recs[0].RequestID)
}

func TestPredictRejectsUnknownLevel(t *testing.T) {
	cfgFile, _ := setupWorkspace(t)
	_, err := execute(t, "-c", cfgFile, "train", "--format", "text")
	require.NoError(t, err)

	_, err = execute(t, "-c", cfgFile, "predict",
		"--distance", "4", "--weather", "Sandstorm", "--traffic", "Low",
		"--time-of-day", "Morning", "--vehicle", "Bike")
	assert.ErrorIs(t, err, model.ErrInvalidFeature)
}

func TestPredictRejectsOutOfRange(t *testing.T) {
	cfgFile, _ := setupWorkspace(t)
	_, err := execute(t, "-c", cfgFile, "train")
	require.NoError(t, err)

	_, err = execute(t, "-c", cfgFile, "predict",
		"--distance", "500", "--weather", "Clear", "--traffic", "Low",
		"--time-of-day", "Morning", "--vehicle", "Bike")
	assert.ErrorIs(t, err, model.ErrInvalidFeature)
}

func TestTrainRejectsUnknownFormatBeforeSaving(t *testing.T) {
	cfgFile, dir := setupWorkspace(t)
	_, err := execute(t, "-c", cfgFile, "train", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format xml")
	assert.NoFileExists(t, filepath.Join(dir, "models", "pipeline.json"))
}

func TestDescribe(t *testing.T) {
	cfgFile, dir := setupWorkspace(t)
	xlsx := filepath.Join(dir, "summary.xlsx")
	out, err := execute(t, "-c", cfgFile, "describe", "--format", "json", "--xlsx", xlsx)
	require.NoError(t, err)
	var s dataset.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 100, s.Rows)
	assert.FileExists(t, xlsx)

	_, err = execute(t, "-c", cfgFile, "describe", "--format", "toml")
	assert.Error(t, err)
}

func TestPredictMQTTRequiresBroker(t *testing.T) {
	cfgFile, _ := setupWorkspace(t)
	_, err := execute(t, "-c", cfgFile, "predict", "--mqtt",
		"--distance", "4", "--weather", "Clear", "--traffic", "Low",
		"--time-of-day", "Morning", "--vehicle", "Bike")
	assert.ErrorContains(t, err, "mqtt.broker")
}
