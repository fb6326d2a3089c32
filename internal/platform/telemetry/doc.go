// Package telemetry records operational events for the live post service.
//
// Operational events (decode failures, dropped frames, status drift) are not
// domain state: they are echoed to the process log, counted on an
// OpenTelemetry meter, and attached to the active span when there is one.
// Emitting never fails back into the caller.
package telemetry
