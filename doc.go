/*
Package mirrorrank is a tool for selecting the freshest mirrors of
Arch-derived distribution repositories.

mirrorrank fetches a distribution's mirror list, probes every eligible
mirror's state endpoint under bounded concurrency to learn the content
version it currently serves, and keeps only the mirrors that report the
highest observed version. Features include:
  - Remote (HTTP) or local mirror-list documents, optionally xz-compressed
  - Optional PGP signature verification of the mirror-list document
  - Per-mirror probe timeouts with a configurable concurrency limit
  - Live progress events as probes complete
  - Atomic mirrorlist output suitable for /etc/pacman.d

The main packages are:

	github.com/mirrorrank/mirrorrank/internal/countries  - Country tags parsed from mirror-list headers
	github.com/mirrorrank/mirrorrank/internal/mirror     - Parsing, probing and selection logic
	github.com/mirrorrank/mirrorrank/cmd/mirrorrank      - Command-line interface
*/
package mirrorrank
