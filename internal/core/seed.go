package core

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"fisheries.gov/smartsearch/internal/store"
)

var defaultRolePrompts = map[string]string{
	store.RolePublic: defaultSystemInstruction,
	store.RoleInternalResearcher: "You are SmartSearch, assisting an internal researcher of a government fisheries agency. " +
		"Cite the relevant agency documents and datasets where possible and be precise about uncertainty in stock assessments.",
	store.RolePolicyMaker: "You are SmartSearch, assisting a policy maker. Summarize the regulatory and economic implications " +
		"of fisheries research in plain language, and flag where the evidence is contested.",
	store.RoleExternalResearcher: "You are SmartSearch, assisting an external researcher. Point to published agency documents " +
		"and public datasets, and note when requested material is not publicly available.",
}

// SeedPrompts inserts a starting prompt for every role that has none yet.
// Roles that already have a prompt are left alone.
func SeedPrompts(ctx context.Context, admin *AdminService) (int, error) {
	seeded := 0
	for _, role := range store.PromptRoles {
		_, err := admin.CurrentPrompt(ctx, role)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return seeded, err
		}
		if _, err := admin.InsertPrompt(ctx, role, defaultRolePrompts[role]); err != nil {
			return seeded, errors.Wrapf(err, "failed to seed prompt for role %s", role)
		}
		log.Info().Str("role", role).Msg("Seeded default prompt")
		seeded++
	}
	return seeded, nil
}
