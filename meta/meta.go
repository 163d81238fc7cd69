package meta

// Version is the current mayatdd release.
const Version = "0.3.0"
