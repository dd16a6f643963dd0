package types

type HeartbeatRequest struct {
	StationID     string `json:"station_id"`
	Status        string `json:"status,omitempty"`
	ActiveCamera  string `json:"active_camera,omitempty"`
	SuccessCount  uint64 `json:"success_count,omitempty"`
	UptimeSeconds uint64 `json:"uptime_s,omitempty"`
	IP            string `json:"ip,omitempty"`
}

type HeartbeatResponse struct {
	OK         bool   `json:"ok"`
	Known      bool   `json:"known"`
	StationID  string `json:"station_id"`
	ServerTime string `json:"server_time"`
}
