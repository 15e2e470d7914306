package runner

import (
	"fmt"

	"rfid_session_go/internal/config"
	"rfid_session_go/sdk"
)

// FromConfig resolves the plan and alias files named in cfg and maps the
// rest onto runner options.
func FromConfig(cfg *config.Config, name string) (Options, error) {
	plan, err := config.LoadPlan(cfg.Reader.PlanFile)
	if err != nil {
		return Options{}, err
	}
	aliases, err := config.LoadAliases(cfg.Reader.AliasFile)
	if err != nil {
		return Options{}, err
	}

	session := cfg.SessionOptions()
	if len(aliases) > 0 {
		session = append(session, sdk.WithModelAliases(aliases))
	}
	opts := Options{
		URI:         cfg.Reader.URI,
		Name:        name,
		DialTimeout: cfg.Reader.DialTimeout,
		RetryDelay:  cfg.Reader.RetryDelay,
		Region:      cfg.Region(),
		Metadata:    cfg.Metadata(),
		Stats:       cfg.Stats(),
		ReadPower:   cfg.Reader.ReadPower,
		Plan:        plan,
		SeenTTL:     cfg.Read.SeenTTL,
		Session:     session,
	}
	if opts.Metadata == sdk.MetaNone {
		return Options{}, fmt.Errorf("reader.metadata: at least one field must be requested")
	}
	return opts, nil
}
