package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func newFactoryTestClient(rt roundTripFunc, c *stubCache) *FactoryClient {
	client := NewFactoryClient(FactoryClientConfig{
		BaseURL:             "https://factory.example.com/",
		DetectedContentPath: "/api/AREditior/GetDetectedContent",
		DeviceDataPath:      "api/AREditior/GetDeviceData",
		Timeout:             time.Second,
		RosterTTL:           time.Minute,
	}, c, nil)
	client.httpClient = newTestClient(rt)
	return client
}

func TestFetchDetectedContentSendsWindow(t *testing.T) {
	client := newFactoryTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/AREditior/GetDetectedContent" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if req.Header.Get("X-Request-ID") == "" {
			t.Fatalf("expected request id header")
		}
		var body map[string]string
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["start_time"] != "2025010100000" || body["end_time"] != "20250101235959" || body["cam_index"] != "3" {
			t.Fatalf("unexpected payload: %v", body)
		}
		return jsonResponse(http.StatusOK, `[
			{"datetime":"20250101080000","cam_index":3,"detected_list":[{"device_id":"1","device_name":"電流","value":"20.5"}]},
			"garbage",
			{"datetime":"20250101080100","cam_index":"3","detected_list":[]}
		]`), nil
	}, newStubCache())

	records, err := client.FetchDetectedContent(context.Background(), "2025010100000", "20250101235959", "3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected malformed record to be skipped, got %d records", len(records))
	}
	if records[0].CamIndex != "3" || records[0].Detections[0].Value != "20.5" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestFetchDetectedContentEnvelope(t *testing.T) {
	body := `{"code":"0000","message":"ok","result":[{"datetime":"20250101080000","cam_index":"1","detected_list":[]}]}`
	client := newFactoryTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, body), nil
	}, newStubCache())

	records, err := client.FetchDetectedContent(context.Background(), "a", "b", "1")
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one record, got %d (%v)", len(records), err)
	}

	body = `{"code":"9001","message":"bad window"}`
	if _, err := client.FetchDetectedContent(context.Background(), "a", "b", "1"); err == nil || !strings.Contains(err.Error(), "bad window") {
		t.Fatalf("expected backend code error, got %v", err)
	}
}

func TestFetchDetectedContentMalformedPayloadIsEmpty(t *testing.T) {
	for _, body := range []string{`{"unexpected":true}`, `"text"`, `42`, `null`} {
		client := newFactoryTestClient(func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, body), nil
		}, newStubCache())
		records, err := client.FetchDetectedContent(context.Background(), "a", "b", "1")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", body, err)
		}
		if records == nil || len(records) != 0 {
			t.Fatalf("%s: expected empty records, got %#v", body, records)
		}
	}
}

func TestFetchDetectedContentHTTPError(t *testing.T) {
	client := newFactoryTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, "upstream down"), nil
	}, newStubCache())
	if _, err := client.FetchDetectedContent(context.Background(), "a", "b", "1"); err == nil {
		t.Fatalf("expected error on non-200")
	}
}

func TestFetchDetectedContentRequiresBaseURL(t *testing.T) {
	client := NewFactoryClient(FactoryClientConfig{}, nil, nil)
	if _, err := client.FetchDetectedContent(context.Background(), "a", "b", "1"); err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestFetchDevicesCachesRoster(t *testing.T) {
	hits := 0
	client := newFactoryTestClient(func(req *http.Request) (*http.Response, error) {
		hits++
		if req.URL.Path != "/api/AREditior/GetDeviceData" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"code":"0000","message":"","result":[
			{"Num":"2","Name":"CNC-10","Status":"IDLE","Connected":"Yes","Alarm":"0","operationRate":"0.5"},
			{"Num":"1","Name":"CNC-2","Status":"RUN","Connected":"Yes","Alarm":"0","operationRate":0.75}
		]}`), nil
	}, newStubCache())

	ctx := context.Background()
	roster, err := client.FetchDevices(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roster.Devices) != 2 || roster.Devices[0].Name != "CNC-2" {
		t.Fatalf("unexpected roster: %+v", roster.Devices)
	}
	if roster.Summary.AverageEfficiency != "0.6250" {
		t.Fatalf("unexpected average efficiency %s", roster.Summary.AverageEfficiency)
	}

	cached, err := client.FetchDevices(ctx)
	if err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered network call; hits=%d", hits)
	}
	if len(cached.Devices) != 2 || cached.Devices[1].Name != "CNC-10" {
		t.Fatalf("unexpected cached roster: %+v", cached)
	}
}

func TestFetchDevicesBackendCode(t *testing.T) {
	client := newFactoryTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"code":"5000","message":"maintenance"}`), nil
	}, newStubCache())
	if _, err := client.FetchDevices(context.Background()); err == nil || !strings.Contains(err.Error(), "maintenance") {
		t.Fatalf("expected backend code error, got %v", err)
	}
}
