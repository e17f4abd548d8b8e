// Package isapi is the HTTP transport for ISAPI access-control devices.
//
// A Client sends requests to a Target (one device's address and
// credentials). Every request goes out with Basic credentials first; a 401
// carrying a Digest challenge is answered with exactly one digest-signed
// retry. Transport failures and vendor error bodies come back as
// *faults.Error values.
//
// SessionManager caches the vendor's secure session (security token plus
// identity key) per device and collapses concurrent refreshes into a single
// acquisition call.
//
// # Usage
//
//	client := isapi.NewClient(isapi.Options{Timeout: 10 * time.Second})
//	var info isapi.DeviceInfo
//	if err := client.GetXML(ctx, target, isapi.PathDeviceInfo, &info); err != nil {
//	    return err
//	}
package isapi
