package isapi

import (
	"net/url"
	"strconv"
)

// ISAPI endpoint paths.
const (
	PathDeviceInfo        = "/ISAPI/System/deviceInfo"
	PathSystemStatus      = "/ISAPI/System/status"
	PathIdentityKey       = "/ISAPI/System/Security/identityKey"
	PathUserRecord        = "/ISAPI/AccessControl/UserInfo/Record"
	PathUserModify        = "/ISAPI/AccessControl/UserInfo/Modify"
	PathUserSearch        = "/ISAPI/AccessControl/UserInfo/Search"
	PathUserDelete        = "/ISAPI/AccessControl/UserInfo/Delete"
	PathFaceLibrary       = "/ISAPI/Intelligent/FDLib"
	PathReboot            = "/ISAPI/System/reboot"
	PathLogSearch         = "/ISAPI/System/Logging/search"
	PathLogClear          = "/ISAPI/System/Logging/clear"
	PathUpdateFirmware    = "/ISAPI/System/updateFirmware"
	PathConfigurationData = "/ISAPI/System/configurationData"
	PathAlertStream       = "/ISAPI/Event/notification/alertStream"
	PathAcsEvent          = "/ISAPI/AccessControl/AcsEvent"

	// PathPrefix is the prefix every ISAPI path carries.
	PathPrefix = "/ISAPI/"

	pathDoorControl       = "/ISAPI/AccessControl/RemoteControl/door/"
	pathUpdateStatus      = "/ISAPI/System/updateStatus/"
	pathNetworkInterfaces = "/ISAPI/System/Network/interfaces/"
)

// DoorControlPath returns the remote control endpoint for door n.
func DoorControlPath(n int) string {
	return pathDoorControl + strconv.Itoa(n)
}

// UpdateStatusPath returns the firmware update status endpoint for id.
func UpdateStatusPath(id string) string {
	return pathUpdateStatus + url.PathEscape(id)
}

// NetworkInterfacePath returns the network interface endpoint for n.
func NetworkInterfacePath(n int) string {
	return pathNetworkInterfaces + strconv.Itoa(n)
}

// JSONQuery returns the format=json query most access-control endpoints need.
func JSONQuery() url.Values {
	return url.Values{"format": []string{"json"}}
}
