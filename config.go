// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds the negotiable algorithm lists and rekey policy shared by
// both roles (spec.md §4.2, §4.4). Grounded on common.go's
// Config/SetDefaults.
type Config struct {
	// Rand is the entropy source for nonces, cookies, and ephemeral KEX
	// keys. Defaults to crypto/rand.Reader.
	Rand randReader

	// RekeyThreshold is the byte count after which a re-key is requested
	// (spec.md §4.4's "1 GiB" trigger). Defaults to 1<<30; values below
	// minRekeyThreshold are raised to it.
	RekeyThreshold uint64

	// RekeyPackets is the packet count after which a re-key is requested
	// (spec.md §4.4's "2^32 packets" trigger, scaled down to something a
	// real connection will actually hit). Zero disables this trigger.
	RekeyPackets uint64

	// RekeyInterval is the wall-clock duration after which a re-key is
	// requested (spec.md §4.4's "1 hour" trigger). Zero disables it.
	RekeyInterval time.Duration

	// KeyExchanges, Ciphers, MACs are this side's offered algorithms in
	// preference order. Nil selects the package defaults.
	KeyExchanges []string
	Ciphers      []string
	MACs         []string

	// MaxPayload caps decoded packet payload size (spec.md §4.1).
	MaxPayload uint32

	// Timeout bounds each read/write on the underlying connection. Zero
	// disables the deadline.
	Timeout time.Duration

	// Metrics, when non-nil, is notified of bytes/packets transferred,
	// re-keys, and channel activity. Left nil, a Session collects nothing.
	Metrics *Metrics
}

// SetDefaults fills unset fields with the package defaults, mirroring
// common.go's Config.SetDefaults.
func (c *Config) SetDefaults() {
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.Ciphers == nil {
		c.Ciphers = defaultCiphers
	}
	var ciphers []string
	for _, name := range c.Ciphers {
		if cipherModes[name] != nil {
			ciphers = append(ciphers, name)
		}
	}
	c.Ciphers = ciphers

	if c.KeyExchanges == nil {
		c.KeyExchanges = defaultKexAlgos
	}
	var kexes []string
	for _, name := range c.KeyExchanges {
		if _, ok := kexAlgorithms[name]; ok {
			kexes = append(kexes, name)
		}
	}
	c.KeyExchanges = kexes

	if c.MACs == nil {
		c.MACs = supportedMACs
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = defaultMaxPayload
	}
	if c.RekeyThreshold == 0 {
		c.RekeyThreshold = 1 << 30
	}
	if c.RekeyThreshold < minRekeyThreshold {
		c.RekeyThreshold = minRekeyThreshold
	}
}

// ClientConfig configures the client role (spec.md §6's "Host-key
// provider" consumer side).
type ClientConfig struct {
	Config

	// HostKeyAlgorithms lists the host-key algorithms this client will
	// accept from a server, in preference order. Nil selects every
	// algorithm this package implements.
	HostKeyAlgorithms []string

	// HostKeyCallback is invoked with the server's verified host key
	// once its signature over the exchange hash checks out; returning an
	// error aborts the handshake (there is no InsecureIgnoreHostKey
	// helper here; callers decide their own trust policy).
	HostKeyCallback func(PublicKey) error
}

var defaultHostKeyAlgorithms = []string{
	KeyAlgoED25519,
	KeyAlgoECDSA256, KeyAlgoECDSA384,
	KeyAlgoRSASHA256, KeyAlgoRSASHA512, KeyAlgoRSA,
	KeyAlgoDSA,
}

// SetDefaults fills unset fields, including the embedded Config.
func (c *ClientConfig) SetDefaults() {
	c.Config.SetDefaults()
	if c.HostKeyAlgorithms == nil {
		c.HostKeyAlgorithms = defaultHostKeyAlgorithms
	}
}

// ServerConfig configures the server role: a set of host keys to offer,
// one per supported algorithm.
type ServerConfig struct {
	Config

	hostKeys []Signer
}

// AddHostKey registers a host key the server may select during
// negotiation (spec.md §6).
func (s *ServerConfig) AddHostKey(key Signer) {
	s.hostKeys = append(s.hostKeys, key)
}

// SetDefaults fills unset fields, including the embedded Config.
func (s *ServerConfig) SetDefaults() {
	s.Config.SetDefaults()
}

// Flags is the zflags-tagged command-line surface for this package's
// rekey policy and algorithm preferences, in the
// modules/*/scanner.go BaseFlags idiom: struct-tag-driven, parsed by
// github.com/zmap/zflags rather than hand-rolled flag parsing.
type Flags struct {
	Ciphers        string        `long:"ciphers" description:"Comma-separated list of ciphers to offer, in preference order"`
	MACs           string        `long:"macs" description:"Comma-separated list of MACs to offer, in preference order"`
	KexAlgorithms  string        `long:"kex-algorithms" description:"Comma-separated list of key exchange algorithms to offer, in preference order"`
	RekeyBytes     uint64        `long:"rekey-bytes" default:"1073741824" description:"Re-key after this many bytes in either direction"`
	RekeyPackets   uint64        `long:"rekey-packets" description:"Re-key after this many packets in either direction (0 disables)"`
	RekeyInterval  time.Duration `long:"rekey-interval" description:"Re-key after this much wall-clock time (0 disables)"`
	Timeout        time.Duration `long:"timeout" default:"10s" description:"Per read/write timeout on the underlying connection"`
	MaxPayloadSize uint          `long:"max-payload" default:"32768" description:"Maximum accepted decoded packet payload size, in bytes"`
}

// Validate checks the flags for sanity, in the style of the sibling
// scanner modules' per-module Flags.Validate.
func (f *Flags) Validate() error {
	if f.RekeyBytes != 0 && f.RekeyBytes < minRekeyThreshold {
		return newError(ErrProtocolViolation, nil)
	}
	return nil
}

// Help returns a short usage description, matching the sibling scanner
// modules' per-module Flags.Help.
func (f *Flags) Help() string {
	return "Transport-level SSH options: algorithm preferences and rekey policy."
}

// ToConfig builds a Config from the parsed flags, defaulting any list the
// operator left blank.
func (f *Flags) ToConfig() *Config {
	cfg := &Config{
		RekeyThreshold: f.RekeyBytes,
		RekeyPackets:   f.RekeyPackets,
		RekeyInterval:  f.RekeyInterval,
		Timeout:        f.Timeout,
		MaxPayload:     uint32(f.MaxPayloadSize),
	}
	if f.Ciphers != "" {
		cfg.Ciphers = strings.Split(f.Ciphers, ",")
	}
	if f.MACs != "" {
		cfg.MACs = strings.Split(f.MACs, ",")
	}
	if f.KexAlgorithms != "" {
		cfg.KeyExchanges = strings.Split(f.KexAlgorithms, ",")
	}
	return cfg
}

// yamlConfig is the on-disk shape for LoadConfigYAML, independent of
// Config so the wire-format ([]string vs comma-joined) stays a file
// concern rather than leaking into the runtime type.
type yamlConfig struct {
	Ciphers       []string `yaml:"ciphers"`
	MACs          []string `yaml:"macs"`
	KexAlgorithms []string `yaml:"kex_algorithms"`
	RekeyBytes    uint64   `yaml:"rekey_bytes"`
	RekeyPackets  uint64   `yaml:"rekey_packets"`
	RekeyInterval string   `yaml:"rekey_interval"`
	Timeout       string   `yaml:"timeout"`
	MaxPayload    uint32   `yaml:"max_payload"`
}

// LoadConfigYAML parses a YAML document into a Config, using
// gopkg.in/yaml.v2 the same way top-level scan configuration loading
// does.
func LoadConfigYAML(data []byte) (*Config, error) {
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, err
	}
	cfg := &Config{
		Ciphers:        y.Ciphers,
		MACs:           y.MACs,
		KeyExchanges:   y.KexAlgorithms,
		RekeyThreshold: y.RekeyBytes,
		RekeyPackets:   y.RekeyPackets,
		MaxPayload:     y.MaxPayload,
	}
	if y.RekeyInterval != "" {
		d, err := time.ParseDuration(y.RekeyInterval)
		if err != nil {
			return nil, err
		}
		cfg.RekeyInterval = d
	}
	if y.Timeout != "" {
		d, err := time.ParseDuration(y.Timeout)
		if err != nil {
			return nil, err
		}
		cfg.Timeout = d
	}
	return cfg, nil
}
