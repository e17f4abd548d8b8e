// Package adapter defines the capability interface every access-control
// device adapter implements, together with the shared data types.
//
// There are two variants: the vendor adapter in adapter/hikvision, which
// speaks ISAPI to real hardware, and the stub in adapter/stub, which returns
// deterministic fixtures. adapter/factory picks one from configuration.
// Callers depend only on Adapter and never inspect the concrete type.
//
// Absence is not an error for user lookups: FindUserByEmployeeNo returns
// (nil, nil) and RemoveUser returns (false, nil) when the employee is not on
// the device. TestConnection never fails, and GetDeviceHealth reports an
// unreachable device as OFFLINE instead of returning an error.
package adapter
