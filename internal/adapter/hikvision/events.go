package hikvision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/isapi"
)

// Event classes reported by access-control terminals.
const (
	majorAlarm     = 1
	majorException = 2
	majorOperation = 3
	majorEvent     = 5

	minorTamper = 1028
)

// Minor codes under majorEvent.
var (
	grantedMinors = map[int]bool{
		1:  true, // valid card
		38: true, // fingerprint matched
		75: true, // face authenticated
		80: true, // card and face authenticated
	}
	deniedMinors = map[int]bool{
		6:  true, // card without permission
		8:  true, // card expired
		9:  true, // card not in schedule
		39: true, // fingerprint mismatch
		76: true, // face authentication failed
	}
	doorOpenedMinors = map[int]bool{21: true, 23: true}
	doorClosedMinors = map[int]bool{22: true, 24: true}
)

// acsPageSize is the maximum number of events fetched per poll.
const acsPageSize = 30

// SubscribeToEvents starts delivering events for deviceID to handler,
// replacing any existing subscription. Configured push mode reads the
// alertStream and falls back to AcsEvent polling when the stream is
// unsupported or keeps failing.
func (a *Adapter) SubscribeToEvents(ctx context.Context, deviceID string, handler adapter.EventHandler) error {
	if handler == nil {
		return faults.New(faults.KindBadRequest, "subscribe_events", "nil event handler")
	}
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return err
	}

	a.subs.Start(deviceID, handler, func(ctx context.Context, emit func(adapter.Event) bool) {
		a.runEvents(ctx, t, emit)
	})
	return nil
}

// UnsubscribeFromEvents stops the device's subscription, if any.
func (a *Adapter) UnsubscribeFromEvents(deviceID string) {
	a.subs.Stop(deviceID)
}

func (a *Adapter) runEvents(ctx context.Context, t isapi.Target, emit func(adapter.Event) bool) {
	if a.cfg.Events.Mode != config.EventModePoll && !a.streamUntilFallback(ctx, t, emit) {
		return
	}
	a.pollEvents(ctx, t, emit)
}

// streamUntilFallback reads the alertStream, reconnecting after failures.
// It returns true when polling should take over and false when ctx ended.
func (a *Adapter) streamUntilFallback(ctx context.Context, t isapi.Target, emit func(adapter.Event) bool) bool {
	maxRetries := max(a.cfg.MaxRetries, 1)
	failures := 0

	for {
		connected, err := a.readStream(ctx, t, emit)
		if ctx.Err() != nil {
			return false
		}
		if connected {
			failures = 0
		}

		kind := faults.KindOf(err)
		if kind == faults.KindNotFound || kind == faults.KindBadRequest {
			a.logger.Info("alert stream unsupported, polling instead", "device_id", t.DeviceID, "error", err)
			return true
		}

		failures++
		a.logger.Warn("alert stream ended", "device_id", t.DeviceID, "failures", failures, "error", err)
		if failures >= maxRetries {
			a.logger.Warn("alert stream keeps failing, polling instead", "device_id", t.DeviceID)
			return true
		}
		if sleepCtx(ctx, a.cfg.Events.ReconnectDelay) != nil {
			return false
		}
	}
}

// readStream consumes one alertStream connection. connected reports whether
// the device accepted the stream.
func (a *Adapter) readStream(ctx context.Context, t isapi.Target, emit func(adapter.Event) bool) (connected bool, err error) {
	resp, err := a.client.Stream(ctx, t, isapi.Request{Method: http.MethodGet, Path: isapi.PathAlertStream})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return true, faults.New(faults.KindDevice, "alert_stream", "unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	a.logger.Info("alert stream connected", "device_id", t.DeviceID)

	reader := multipart.NewReader(resp.Body, params["boundary"])
	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, faults.New(faults.KindConnection, "alert_stream", "stream closed by device")
			}
			return true, faults.Wrap(faults.KindConnection, "alert_stream", err)
		}

		// Emit before the part is drained: draining waits for the next
		// boundary, which only arrives with the next event.
		var n isapi.EventNotification
		if err := json.NewDecoder(part).Decode(&n); err != nil {
			continue // heartbeats and image parts are not JSON
		}
		if ev, ok := a.fromNotification(t.DeviceID, n); ok {
			emit(ev)
		}
	}
}

func (a *Adapter) fromNotification(deviceID string, n isapi.EventNotification) (adapter.Event, bool) {
	if n.AccessEvent != nil {
		ev := a.fromAcsEvent(deviceID, *n.AccessEvent, adapter.SourcePush)
		if ev.Time.IsZero() {
			ev.Time = a.parseTime(n.DateTime)
		}
		return ev, true
	}
	if n.EventState == "inactive" || n.EventType == "" || n.EventType == "heartBeat" {
		return adapter.Event{}, false
	}
	typ := adapter.EventOther
	if strings.Contains(strings.ToLower(n.EventType), "tamper") {
		typ = adapter.EventTamper
	}
	return adapter.Event{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Type:     typ,
		Time:     a.parseTime(n.DateTime),
		Source:   adapter.SourcePush,
	}, true
}

// pollEvents searches AcsEvent on every tick. The first tick only records
// the latest serial number so history is not replayed.
func (a *Adapter) pollEvents(ctx context.Context, t isapi.Target, emit func(adapter.Event) bool) {
	interval := a.cfg.Events.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	a.logger.Info("event polling started", "device_id", t.DeviceID, "interval", interval)

	var last int64
	baseline := false

	poll := func() {
		if !baseline {
			newest, err := a.latestSerial(ctx, t)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Warn("event baseline failed", "device_id", t.DeviceID, "error", err)
				}
				return
			}
			last, baseline = newest, true
			return
		}

		events, err := a.searchEvents(ctx, t, last+1)
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("event poll failed", "device_id", t.DeviceID, "error", err)
			}
			return
		}
		for _, raw := range events {
			if raw.SerialNo <= last {
				continue
			}
			emit(a.fromAcsEvent(t.DeviceID, raw, adapter.SourcePoll))
			last = raw.SerialNo
		}
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

// latestSerial returns the newest event serial number on the device, or 0
// when it holds none. It reads totalMatches from a one-result search and
// then fetches only the last match, whatever the history size.
func (a *Adapter) latestSerial(ctx context.Context, t isapi.Target) (int64, error) {
	search := func(position int) (*isapi.AcsEventList, error) {
		req := isapi.AcsEventCondRequest{Cond: isapi.AcsEventCond{
			SearchID:             uuid.NewString(),
			SearchResultPosition: position,
			MaxResults:           1,
			Major:                majorEvent,
		}}
		var out isapi.AcsEventResult
		if err := a.client.DoJSON(ctx, t, http.MethodPost, isapi.PathAcsEvent, req, &out); err != nil {
			return nil, err
		}
		return &out.AcsEvent, nil
	}

	first, err := search(0)
	if err != nil {
		return 0, err
	}
	if first.TotalMatches <= 1 {
		if len(first.InfoList) == 0 {
			return 0, nil
		}
		return first.InfoList[0].SerialNo, nil
	}

	tail, err := search(first.TotalMatches - 1)
	if err != nil {
		return 0, err
	}
	if len(tail.InfoList) == 0 {
		return 0, faults.New(faults.KindDevice, "event_baseline",
			"no event at position %d of %d", first.TotalMatches-1, first.TotalMatches).WithDevice(t.DeviceID)
	}
	return tail.InfoList[len(tail.InfoList)-1].SerialNo, nil
}

// searchEvents fetches events with serial numbers from begin onwards,
// oldest first, following MORE pages.
func (a *Adapter) searchEvents(ctx context.Context, t isapi.Target, begin int64) ([]isapi.AcsEventRaw, error) {
	var all []isapi.AcsEventRaw
	for {
		req := isapi.AcsEventCondRequest{Cond: isapi.AcsEventCond{
			SearchID:      uuid.NewString(),
			MaxResults:    acsPageSize,
			Major:         majorEvent,
			BeginSerialNo: begin,
		}}
		var out isapi.AcsEventResult
		if err := a.client.DoJSON(ctx, t, http.MethodPost, isapi.PathAcsEvent, req, &out); err != nil {
			return all, err
		}

		page := out.AcsEvent.InfoList
		all = append(all, page...)
		if out.AcsEvent.Status != "MORE" || len(page) == 0 {
			return all, nil
		}
		begin = page[len(page)-1].SerialNo + 1
	}
}

func (a *Adapter) fromAcsEvent(deviceID string, raw isapi.AcsEventRaw, source string) adapter.Event {
	major, minor := raw.MajorMinor()
	return adapter.Event{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		Type:       classifyEvent(major, minor),
		Major:      major,
		Minor:      minor,
		EmployeeNo: raw.EmployeeNo,
		Name:       raw.Name,
		CardNo:     raw.CardNo,
		DoorNo:     raw.DoorNo,
		SerialNo:   raw.SerialNo,
		Time:       a.parseTime(raw.Time),
		Source:     source,
	}
}

func (a *Adapter) parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := isapi.ParseDeviceTime(s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func classifyEvent(major, minor int) string {
	switch major {
	case majorEvent:
		switch {
		case grantedMinors[minor]:
			return adapter.EventAccessGranted
		case deniedMinors[minor]:
			return adapter.EventAccessDenied
		case doorOpenedMinors[minor]:
			return adapter.EventDoorOpened
		case doorClosedMinors[minor]:
			return adapter.EventDoorClosed
		}
		return adapter.EventOther
	case majorAlarm:
		if minor == minorTamper {
			return adapter.EventTamper
		}
		return adapter.EventAlarm
	case majorException:
		return adapter.EventException
	case majorOperation:
		return adapter.EventOther
	}
	return adapter.EventOther
}
