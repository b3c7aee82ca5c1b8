// Package domain models geophysical sensors and their time series as they are
// stored after ingestion from remote weather-station networks.
//
// # Data Sources
//
// Netatmo: a public, crowd-sourced weather-station network. Stations are
// discovered per bounding box via the public weathermap API and expose one or
// more modules (outdoor, rain gauge, anemometer). Series are fetched per
// module through a paginated measure endpoint, keyed by epoch seconds.
//
// DWD (Deutscher Wetterdienst): the national meteorological service. Daily
// climate observations ("KL Tageswerte") are published as semicolon-separated
// text files, one per station, plus a fixed-width station description list.
//
// # Identity
//
// A sensor is identified by (OriginalID, Source). The surrogate ID is assigned
// exactly once by the repository on first insert and is modelled as a
// [SurrogateID] that is either unassigned or assigned. Re-assigning a
// different value fails with [ErrIDAlreadyAssigned].
//
// # Measurement Types
//
// [MeasurementType] is a dense enumeration starting at zero so it can index
// arrays. Each type maps to exactly one physical unit:
//
//	Pressure          mBar
//	Temperature       Celsius
//	Humidity          percentage
//	Wind/Gust speed   km/h
//	Wind/Gust angle   degrees
//	Rain/Snow         mm
//	Cloud coverage    eights
//	Sunshine          hours
//	Precipitation     code
//
// Source columns that have no mapping resolve to [MeasurementTypeUnknown],
// which is skipped by ingestion and rejected by repositories.
//
// # Missing Values
//
// Sources encode "no reading" with sentinels (DWD: -999, Netatmo: JSON null).
// Such values are dropped before type mapping. They are never imputed or
// zero-filled.
//
// # Watermarks
//
// The watermark of a (sensor, measurement type) pair is the maximum stored
// timestamp. Incremental ingestion fetches strictly after it, which is what
// keeps re-runs idempotent.
package domain
