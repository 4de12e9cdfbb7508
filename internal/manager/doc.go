// Package manager shares one loaded vision-language model between HTTP
// requests. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; New applies defaults.
//   - types.go: internal state types (State, Snapshot).
//   - errors.go: error types and helpers (IsTooBusy, IsBadRequest, ...).
//   - admission.go: FIFO queueing with a single in-flight generation.
//   - describe.go: image resolution plus generation for one request.
//   - events.go, eventpub_*.go: lifecycle events and publishers.
//   - status_report.go: Status/Snapshot reporting helpers.
//
// External packages should use public methods only (New, Describe, Ready,
// Status, Drain).
package manager
