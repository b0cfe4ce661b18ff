package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/model"
)

func capture(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, strings.TrimSpace(string(b)))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func TestInfluxSink_RecordPrediction(t *testing.T) {
	srv, bodies := capture(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.PredictionEvent{
		RequestID: "r1",
		Source:    coremetrics.SourceHTTP,
		Row:       model.FeatureRow{DistanceKm: 7.5, Weather: "Clear", TrafficLevel: "Low", VehicleType: "Bike"},
		Labels: map[string]string{
			model.ColWeather: "Clear", model.ColTraffic: "Low", model.ColVehicle: "Bike",
		},
		Minutes: 31.25,
		Latency:   2 * time.Millisecond,
		Time:      now,
	}
	if err := sink.RecordPrediction(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("prediction").
		AddTag("source", "http").
		AddTag("vehicle_type", "Bike").
		AddTag("weather", "Clear").
		AddTag("traffic_level", "Low").
		AddTag("outcome", "ok").
		AddField("request_id", "r1").
		AddField("distance_km", 7.5).
		AddField("minutes", 31.25).
		AddField("latency_ms", 2.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if len(*bodies) != 1 || (*bodies)[0] != expected {
		t.Errorf("unexpected bodies: %#v", *bodies)
	}
}

func TestInfluxSink_RecordTraining(t *testing.T) {
	srv, bodies := capture(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.TrainingEvent{TrainRows: 80, TestRows: 20, Features: 18, RMSE: 1.23456, MAE: 1, R2: 0.9, Iterations: 7, Converged: true, Duration: time.Second, Time: now}
	if err := sink.RecordTraining(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("training_run").
		AddTag("component", "trainer").
		AddField("train_rows", 80).
		AddField("test_rows", 20).
		AddField("features", 18).
		AddField("rmse", 1.235).
		AddField("mae", 1.0).
		AddField("r2", 0.9).
		AddField("iterations", 7).
		AddField("converged", true).
		AddField("duration_ms", 1000.0).
		SetTime(now)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if len(*bodies) != 1 || (*bodies)[0] != exp {
		t.Errorf("bodies: %#v", *bodies)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
