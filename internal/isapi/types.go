package isapi

import (
	"encoding/xml"
	"time"
)

// DeviceTimeLayout is the local-time format devices use in user validity
// windows and event searches.
const DeviceTimeLayout = "2006-01-02T15:04:05"

// DeviceInfo is the body of GET /ISAPI/System/deviceInfo.
type DeviceInfo struct {
	XMLName         xml.Name `xml:"DeviceInfo"`
	DeviceName      string   `xml:"deviceName"`
	DeviceID        string   `xml:"deviceID"`
	Model           string   `xml:"model"`
	SerialNumber    string   `xml:"serialNumber"`
	MACAddress      string   `xml:"macAddress"`
	FirmwareVersion string   `xml:"firmwareVersion"`
	FirmwareDate    string   `xml:"firmwareReleasedDate"`
	DeviceType      string   `xml:"deviceType"`
}

// DeviceStatus is the body of GET /ISAPI/System/status.
type DeviceStatus struct {
	XMLName      xml.Name      `xml:"DeviceStatus"`
	CurrentTime  string        `xml:"currentDeviceTime"`
	UpTime       int64         `xml:"deviceUpTime"` // seconds
	CPUs         []CPUStatus   `xml:"CPUList>CPU"`
	Memory       []MemoryStat  `xml:"MemoryList>Memory"`
	Storage      []StorageStat `xml:"StorageList>Storage"`
	Temperatures []float64     `xml:"TemperatureList>Temperature>temperature"`
}

// CPUStatus is one CPU entry of DeviceStatus.
type CPUStatus struct {
	Description string  `xml:"cpuDescription"`
	Utilization float64 `xml:"cpuUtilization"`
}

// MemoryStat is one memory entry of DeviceStatus, in MB.
type MemoryStat struct {
	Description string  `xml:"memoryDescription"`
	Usage       float64 `xml:"memoryUsage"`
	Available   float64 `xml:"memoryAvailable"`
}

// StorageStat is one storage entry of DeviceStatus, in MB.
type StorageStat struct {
	Capacity  float64 `xml:"capacity"`
	FreeSpace float64 `xml:"freeSpace"`
}

// RemoteControlDoor is the body of POST /ISAPI/AccessControl/RemoteControl/door/{n}.
type RemoteControlDoor struct {
	XMLName xml.Name `xml:"RemoteControlDoor"`
	Cmd     string   `xml:"cmd"`
}

// Door commands.
const (
	DoorOpen  = "open"
	DoorClose = "close"
)

// NetworkInterface is the body of /ISAPI/System/Network/interfaces/{n}.
type NetworkInterface struct {
	XMLName   xml.Name  `xml:"NetworkInterface"`
	ID        int       `xml:"id"`
	IPAddress IPAddress `xml:"IPAddress"`
}

// IPAddress is the addressing block of NetworkInterface.
type IPAddress struct {
	IPVersion      string `xml:"ipVersion"`
	AddressingType string `xml:"addressingType"` // static or dynamic
	IPAddress      string `xml:"ipAddress"`
	SubnetMask     string `xml:"subnetMask"`
	DefaultGateway string `xml:"DefaultGateway>ipAddress"`
	PrimaryDNS     string `xml:"PrimaryDNS>ipAddress"`
}

// IdentityKey is the secure session returned by the identityKey endpoint.
type IdentityKey struct {
	Security    string `json:"security"`
	IdentityKey string `json:"identityKey"`
}

// UserInfo is a device-resident user record.
type UserInfo struct {
	EmployeeNo string    `json:"employeeNo"`
	Name       string    `json:"name"`
	UserType   string    `json:"userType"`
	Valid      UserValid `json:"Valid"`
	DoorRight  string    `json:"doorRight,omitempty"`
}

// UserValid is the validity window of a UserInfo.
type UserValid struct {
	Enable    bool   `json:"enable"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
}

// UserInfoRecord wraps a UserInfo for Record and Modify.
type UserInfoRecord struct {
	UserInfo UserInfo `json:"UserInfo"`
}

// EmployeeNoRef names one user in search and delete conditions.
type EmployeeNoRef struct {
	EmployeeNo string `json:"employeeNo"`
}

// UserInfoSearchCond is the body of UserInfo/Search.
type UserInfoSearchCond struct {
	Cond UserSearchCond `json:"UserInfoSearchCond"`
}

// UserSearchCond holds the search parameters.
type UserSearchCond struct {
	SearchID             string          `json:"searchID"`
	SearchResultPosition int             `json:"searchResultPosition"`
	MaxResults           int             `json:"maxResults"`
	EmployeeNoList       []EmployeeNoRef `json:"EmployeeNoList,omitempty"`
}

// UserInfoSearchResult is the reply to UserInfo/Search.
type UserInfoSearchResult struct {
	Search UserSearchResult `json:"UserInfoSearch"`
}

// UserSearchResult holds the search matches.
type UserSearchResult struct {
	SearchID     string     `json:"searchID"`
	Status       string     `json:"responseStatusStrg"` // OK, MORE or NO MATCH
	NumOfMatches int        `json:"numOfMatches"`
	TotalMatches int        `json:"totalMatches"`
	UserInfo     []UserInfo `json:"UserInfo,omitempty"`
}

// UserInfoDelCond is the body of UserInfo/Delete.
type UserInfoDelCond struct {
	Cond UserDelCond `json:"UserInfoDelCond"`
}

// UserDelCond lists the users to delete.
type UserDelCond struct {
	EmployeeNoList []EmployeeNoRef `json:"EmployeeNoList"`
}

// LogSearchResult is the reply to GET /ISAPI/System/Logging/search?format=json.
type LogSearchResult struct {
	Search LogSearch `json:"LogSearch"`
}

// LogSearch holds the matched log entries.
type LogSearch struct {
	NumOfMatches int           `json:"numOfMatches"`
	Entries      []LogEntryRaw `json:"LogEntry"`
}

// LogEntryRaw is one vendor log line.
type LogEntryRaw struct {
	Time        string `json:"time"`
	MajorType   string `json:"majorType"` // Alarm, Exception, Operation, Information
	MinorType   string `json:"minorType"`
	Description string `json:"description"`
}

// FirmwareUpgrade is the body of POST /ISAPI/System/updateFirmware.
type FirmwareUpgrade struct {
	URL string `json:"url"`
}

// FirmwareUpgradeAccepted is the reply to updateFirmware.
type FirmwareUpgradeAccepted struct {
	UpdateID string `json:"updateId"`
}

// Firmware update states reported by updateStatus.
const (
	UpgradeProcessing = "processing"
	UpgradeCompleted  = "completed"
	UpgradeFailed     = "failed"
)

// FirmwareUpgradeStatus is the reply to GET /ISAPI/System/updateStatus/{id}.
type FirmwareUpgradeStatus struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

// AcsEventCondRequest is the body of POST /ISAPI/AccessControl/AcsEvent.
type AcsEventCondRequest struct {
	Cond AcsEventCond `json:"AcsEventCond"`
}

// AcsEventCond holds the event search parameters.
type AcsEventCond struct {
	SearchID             string `json:"searchID"`
	SearchResultPosition int    `json:"searchResultPosition"`
	MaxResults           int    `json:"maxResults"`
	Major                int    `json:"major"`
	Minor                int    `json:"minor"`
	BeginSerialNo        int64  `json:"beginSerialNo,omitempty"`
}

// AcsEventResult is the reply to AcsEvent.
type AcsEventResult struct {
	AcsEvent AcsEventList `json:"AcsEvent"`
}

// AcsEventList holds matched events.
type AcsEventList struct {
	SearchID     string        `json:"searchID"`
	Status       string        `json:"responseStatusStrg"`
	NumOfMatches int           `json:"numOfMatches"`
	TotalMatches int           `json:"totalMatches"`
	InfoList     []AcsEventRaw `json:"InfoList"`
}

// AcsEventRaw is one access-control event as the device reports it, both
// in AcsEvent searches and inside alertStream notifications.
type AcsEventRaw struct {
	Major      int    `json:"major,omitempty"`
	Minor      int    `json:"minor,omitempty"`
	MajorType  int    `json:"majorEventType,omitempty"`
	SubType    int    `json:"subEventType,omitempty"`
	Time       string `json:"time,omitempty"`
	EmployeeNo string `json:"employeeNoString,omitempty"`
	Name       string `json:"name,omitempty"`
	CardNo     string `json:"cardNo,omitempty"`
	DoorNo     int    `json:"doorNo,omitempty"`
	SerialNo   int64  `json:"serialNo"`
	VerifyMode string `json:"currentVerifyMode,omitempty"`
}

// MajorMinor returns the event class, whichever field pair the device used.
func (e AcsEventRaw) MajorMinor() (major, minor int) {
	if e.Major != 0 || e.Minor != 0 {
		return e.Major, e.Minor
	}
	return e.MajorType, e.SubType
}

// EventNotification is one JSON part of the alertStream.
type EventNotification struct {
	IPAddress   string       `json:"ipAddress"`
	DateTime    string       `json:"dateTime"`
	EventType   string       `json:"eventType"`
	EventState  string       `json:"eventState"`
	Description string       `json:"eventDescription"`
	AccessEvent *AcsEventRaw `json:"AccessControllerEvent,omitempty"`
}

// ParseDeviceTime parses the timestamps devices emit, with or without a
// zone offset. Times without an offset are read in loc.
func ParseDeviceTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(DeviceTimeLayout, s, loc)
}
