package schema

// MapAt is Map with a fixed clock.
var MapAt = mapAt
