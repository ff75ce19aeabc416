// Package ir provides the value types shared by every itemupdate package:
// metadata fields and compound field names, the typed Error, and the
// compiled registry definition.
//
// This package imports nothing internal. All other internal packages import
// ir, which keeps it the foundational layer with no circular dependencies.
//
// Values are plain structs passed by value. Once built they are never
// mutated, so a MetadataField read from an archive can be stored in the undo
// set and written back unchanged.
package ir
