// Package wire converts between the API types and google.protobuf.Struct,
// the message carried by the gRPC service and protobuf HTTP bodies. Field
// names match the JSON API.
package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

// ── Attendance ───────────────────────────────────────────────────────────────

func AttendanceRequestFromStruct(p *structpb.Struct) (types.AttendanceRequest, error) {
	f := fields(p)
	issuedAt, err := int64Field(f, "issued_at_ms")
	if err != nil {
		return types.AttendanceRequest{}, err
	}
	minutes, err := int64Field(f, "valid_minutes")
	if err != nil {
		return types.AttendanceRequest{}, err
	}
	return types.AttendanceRequest{
		Token:        stringField(f, "token"),
		ClassID:      stringField(f, "class_id"),
		IssuedAtMs:   issuedAt,
		ValidMinutes: minutes,
		StudentID:    stringField(f, "student_id"),
		StationID:    stringField(f, "station_id"),
		CameraID:     stringField(f, "camera_id"),
		SubmittedAt:  stringField(f, "submitted_at"),
	}, nil
}

func AttendanceRequestToStruct(r types.AttendanceRequest) *structpb.Struct {
	f := map[string]*structpb.Value{
		"class_id":      structpb.NewStringValue(r.ClassID),
		"issued_at_ms":  structpb.NewNumberValue(float64(r.IssuedAtMs)),
		"valid_minutes": structpb.NewNumberValue(float64(r.ValidMinutes)),
		"student_id":    structpb.NewStringValue(r.StudentID),
		"station_id":    structpb.NewStringValue(r.StationID),
	}
	putString(f, "token", r.Token)
	putString(f, "camera_id", r.CameraID)
	putString(f, "submitted_at", r.SubmittedAt)
	return &structpb.Struct{Fields: f}
}

func AttendanceResponseToStruct(r types.AttendanceResponse) *structpb.Struct {
	f := map[string]*structpb.Value{
		"ok":          structpb.NewBoolValue(r.OK),
		"accepted":    structpb.NewBoolValue(r.Accepted),
		"class_id":    structpb.NewStringValue(r.ClassID),
		"student_id":  structpb.NewStringValue(r.StudentID),
		"server_time": structpb.NewStringValue(r.ServerTime),
	}
	putString(f, "reason", r.Reason)
	putString(f, "record_id", r.RecordID)
	return &structpb.Struct{Fields: f}
}

func AttendanceResponseFromStruct(p *structpb.Struct) types.AttendanceResponse {
	f := fields(p)
	return types.AttendanceResponse{
		OK:         boolField(f, "ok"),
		Accepted:   boolField(f, "accepted"),
		Reason:     stringField(f, "reason"),
		RecordID:   stringField(f, "record_id"),
		ClassID:    stringField(f, "class_id"),
		StudentID:  stringField(f, "student_id"),
		ServerTime: stringField(f, "server_time"),
	}
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func HeartbeatRequestFromStruct(p *structpb.Struct) (types.HeartbeatRequest, error) {
	f := fields(p)
	count, err := int64Field(f, "success_count")
	if err != nil {
		return types.HeartbeatRequest{}, err
	}
	uptime, err := int64Field(f, "uptime_s")
	if err != nil {
		return types.HeartbeatRequest{}, err
	}
	if count < 0 || uptime < 0 {
		return types.HeartbeatRequest{}, fmt.Errorf("wire: negative counter")
	}
	return types.HeartbeatRequest{
		StationID:     stringField(f, "station_id"),
		Status:        stringField(f, "status"),
		ActiveCamera:  stringField(f, "active_camera"),
		SuccessCount:  uint64(count),
		UptimeSeconds: uint64(uptime),
		IP:            stringField(f, "ip"),
	}, nil
}

func HeartbeatResponseToStruct(r types.HeartbeatResponse) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok":          structpb.NewBoolValue(r.OK),
		"known":       structpb.NewBoolValue(r.Known),
		"station_id":  structpb.NewStringValue(r.StationID),
		"server_time": structpb.NewStringValue(r.ServerTime),
	}}
}

// ── helpers ──────────────────────────────────────────────────────────────────

// maxExactFloat is the largest integer a float64 holds exactly.
const maxExactFloat = 1 << 53

func fields(p *structpb.Struct) map[string]*structpb.Value {
	if p == nil {
		return nil
	}
	return p.GetFields()
}

func stringField(f map[string]*structpb.Value, name string) string {
	return f[name].GetStringValue()
}

func boolField(f map[string]*structpb.Value, name string) bool {
	return f[name].GetBoolValue()
}

// int64Field accepts a whole number. Epoch milliseconds fit well within
// float64's exact range; anything beyond it is rejected.
func int64Field(f map[string]*structpb.Value, name string) (int64, error) {
	v, ok := f[name]
	if !ok || v == nil {
		return 0, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return 0, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		return 0, fmt.Errorf("wire: %s must be a number", name)
	}
	x := n.NumberValue
	if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) || math.Abs(x) > maxExactFloat {
		return 0, fmt.Errorf("wire: %s must be a whole number", name)
	}
	return int64(x), nil
}

func putString(f map[string]*structpb.Value, name, v string) {
	if v != "" {
		f[name] = structpb.NewStringValue(v)
	}
}
