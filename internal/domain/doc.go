// Package domain models National Weather Service (NWS) station observation data.
//
// # Data Source
//
// Observations come from the NWS public API at https://api.weather.gov. Each
// station exposes a metadata document (GET /stations/{id}) and a time-ranged
// observation feed (GET /stations/{id}/observations). Both return GeoJSON:
// station metadata carries a "properties" object plus a "geometry" whose
// coordinates are ordered [longitude, latitude]; each observation is a Feature
// whose properties hold a timestamp and a set of nested measurements.
//
// # Measurement Convention
//
// Every measured quantity is wrapped in a {"value": <number|null>, ...}
// object. Units are fixed by the API (temperature and dewpoint in °C, wind
// speed in km/h, wind direction in degrees, humidity in percent, pressure in
// Pa, visibility in meters) and any field may be null when the sensor did not
// report. Normalization flattens these into nullable scalars rounded to two
// decimal places; a record that lacks a parseable timestamp is unusable and is
// discarded by the ingestion pipeline before persistence.
package domain
