// Package marshal converts configuration values to and from host values.
//
// The conversion algorithm is written once, against the Factory interface,
// and each host environment supplies a Factory with its own constructors:
//
//   - StarlarkFactory for scripts running in the embedded Starlark host
//   - GoFactory for plain Go values (templates, JSON output)
//   - YAMLFactory for order-preserving YAML output
//
// Encode is total for every value.Value; the only failures are errors
// returned by the factory itself, which come back as *ConversionError with
// the host's message intact.
//
// The decoders go the other way for host inputs: DecodeStarlark and
// DecodeStrings for Starlark arguments, DecodeGo for Go values.
package marshal
