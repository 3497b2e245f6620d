// Package device provides the platform-neutral Bluetooth Low Energy (BLE)
// abstractions used by the scanner and the connection monitor.
//
// It contains:
//   - Central and Client, the narrow GATT client surface blemon consumes
//   - Peripheral, the immutable record of one scan match
//   - the error taxonomy shared by every BLE code path
//   - the characteristic decoder for well-known SIG characteristics
package device
