// Package calibration defines the types shared by the radio power calibration
// workflow. It contains:
//
//   - State: the catalogue of calibration state-machine states, with the RF channel,
//     search bit and characterization point carried as explicit fields
//   - Status: the outcome codes the device returns for every transition
//   - Measurement: an optional aggregated power reading handed to the device
//   - Result and Record: the per-session outcome and the per-step log record
//
// These types are shared across the session driver, daemon, client and CLI code to
// keep the JSON contracts consistent.
package calibration
