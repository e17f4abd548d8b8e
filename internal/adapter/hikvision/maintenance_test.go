package hikvision

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/isapi"
	"github.com/nerrad567/gray-logic-access/internal/isapi/isapitest"
)

func TestGetDeviceLogs(t *testing.T) {
	a, _, _ := setup(t)
	ctx := context.Background()
	at := func(h int) time.Time { return time.Date(2026, 3, 1, h, 0, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		q          adapter.LogQuery
		want       int
		firstLevel string
		firstCat   string
	}{
		{"all", adapter.LogQuery{}, 4, adapter.LogLevelInfo, "remoteOpenDoor"},
		{"warnings and worse", adapter.LogQuery{Level: adapter.LogLevelWarning}, 2, adapter.LogLevelError, "netBroken"},
		{"from ten", adapter.LogQuery{From: at(10)}, 2, adapter.LogLevelInfo, "remoteOpenDoor"},
		{"window", adapter.LogQuery{From: at(9), To: at(9)}, 1, adapter.LogLevelWarning, "doorAbnormalOpen"},
		{"limit", adapter.LogQuery{Limit: 1}, 1, adapter.LogLevelInfo, "remoteOpenDoor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := a.GetDeviceLogs(ctx, "door-1", tt.q)
			if err != nil {
				t.Fatalf("GetDeviceLogs: %v", err)
			}
			if len(entries) != tt.want {
				t.Fatalf("got %d entries, want %d", len(entries), tt.want)
			}
			if entries[0].Level != tt.firstLevel || entries[0].Category != tt.firstCat {
				t.Errorf("first entry = %+v", entries[0])
			}
			for i := 1; i < len(entries); i++ {
				if entries[i].Timestamp.After(entries[i-1].Timestamp) {
					t.Errorf("entries not newest first at %d", i)
				}
			}
		})
	}
}

func TestGetDeviceLogs_RejectsBadQuery(t *testing.T) {
	a, srv, _ := setup(t)
	ctx := context.Background()
	now := time.Now()

	_, err := a.GetDeviceLogs(ctx, "door-1", adapter.LogQuery{Level: "verbose"})
	wantKind(t, err, faults.KindBadRequest)
	_, err = a.GetDeviceLogs(ctx, "door-1", adapter.LogQuery{From: now, To: now.Add(-time.Hour)})
	wantKind(t, err, faults.KindBadRequest)
	if srv.TotalRequests() != 0 {
		t.Errorf("device saw %d requests, want 0", srv.TotalRequests())
	}
}

func TestClearDeviceLogs(t *testing.T) {
	a, srv, _ := setup(t)
	if err := a.ClearDeviceLogs(context.Background(), "door-1"); err != nil {
		t.Fatalf("ClearDeviceLogs: %v", err)
	}
	if srv.LogCount() != 0 {
		t.Errorf("LogCount() = %d, want 0", srv.LogCount())
	}
}

func TestUpdateFirmware_CompletesWithBackup(t *testing.T) {
	a, srv, _ := setup(t)
	const url = "http://files.example.com/fw/digicap.dav"

	res, err := a.UpdateFirmware(context.Background(), "door-1", adapter.FirmwareRequest{URL: url, Backup: true})
	if err != nil {
		t.Fatalf("UpdateFirmware: %v", err)
	}
	if res.Status != adapter.FirmwareCompleted || res.UpdateID == "" {
		t.Errorf("result = %+v", res)
	}
	if res.PreviousVersion != isapitest.DefaultFirmware || res.CurrentVersion != isapitest.UpgradedVersion {
		t.Errorf("versions = %s -> %s", res.PreviousVersion, res.CurrentVersion)
	}
	if !res.BackupTaken || string(res.Backup) != "FAKE-CONFIG-v1" || res.BackupError != "" {
		t.Errorf("backup = taken %v data %q err %q", res.BackupTaken, res.Backup, res.BackupError)
	}
	if srv.FirmwareURL() != url {
		t.Errorf("device fetched %q, want %q", srv.FirmwareURL(), url)
	}
}

func TestUpdateFirmware_BackupFailureIsNotFatal(t *testing.T) {
	a, srv, _ := setup(t)
	srv.ForceStatus(http.MethodGet, isapi.PathConfigurationData, http.StatusInternalServerError)

	res, err := a.UpdateFirmware(context.Background(), "door-1",
		adapter.FirmwareRequest{URL: "https://files.example.com/fw.dav", Backup: true})
	if err != nil {
		t.Fatalf("UpdateFirmware: %v", err)
	}
	if res.BackupTaken || res.BackupError == "" {
		t.Errorf("backup taken=%v error=%q, want recorded failure", res.BackupTaken, res.BackupError)
	}
	if res.Status != adapter.FirmwareCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
}

func TestUpdateFirmware_Failures(t *testing.T) {
	tests := []struct {
		name     string
		polls    int
		fail     bool
		deadline time.Duration
		url      string
		want     faults.Kind
	}{
		{"device reports failure", 1, true, 2 * time.Second, "http://fw/ok.dav", faults.KindDevice},
		{"deadline", 100000, false, 100 * time.Millisecond, "http://fw/ok.dav", faults.KindTimeout},
		{"bad url", 1, false, time.Second, "ftp://fw/ok.dav", faults.KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Firmware.Deadline = tt.deadline
			a, srv, _ := setupWith(t, cfg)
			srv.FirmwareScript(tt.polls, tt.fail)

			res, err := a.UpdateFirmware(context.Background(), "door-1", adapter.FirmwareRequest{URL: tt.url})
			wantKind(t, err, tt.want)
			if tt.want == faults.KindDevice && (res == nil || res.Status != adapter.FirmwareFailed) {
				t.Errorf("result = %+v, want failed status", res)
			}
		})
	}
}

func TestBackupAndRestore(t *testing.T) {
	a, srv, _ := setup(t)
	ctx := context.Background()

	data, err := a.BackupConfiguration(ctx, "door-1")
	if err != nil || string(data) != "FAKE-CONFIG-v1" {
		t.Fatalf("BackupConfiguration = %q, %v", data, err)
	}

	if err := a.RestoreConfiguration(ctx, "door-1", []byte("RESTORED")); err != nil {
		t.Fatalf("RestoreConfiguration: %v", err)
	}
	if string(srv.Config()) != "RESTORED" {
		t.Errorf("device config = %q", srv.Config())
	}

	wantKind(t, a.RestoreConfiguration(ctx, "door-1", nil), faults.KindBadRequest)
}

func TestGetFaceData_UsesAndRefreshesSession(t *testing.T) {
	a, srv, _ := setup(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		data, err := a.GetFaceData(ctx, "door-1")
		if err != nil || string(data) != "FDLIB-BINARY" {
			t.Fatalf("GetFaceData #%d = %q, %v", i+1, data, err)
		}
	}
	if srv.Sessions() != 1 {
		t.Errorf("sessions issued = %d, want 1 (cached)", srv.Sessions())
	}

	srv.RotateSession()
	_, err := a.GetFaceData(ctx, "door-1")
	wantKind(t, err, faults.KindAuthentication)
	if a.Sessions().Len() != 0 {
		t.Error("rejected session still cached")
	}

	if _, err := a.GetFaceData(ctx, "door-1"); err != nil {
		t.Fatalf("GetFaceData after refresh: %v", err)
	}
	if srv.Sessions() != 2 {
		t.Errorf("sessions issued = %d, want 2", srv.Sessions())
	}
}
