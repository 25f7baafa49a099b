package services

import (
	"fmt"

	"github.com/casbin/casbin/v2"

	"github.com/you/phoneauth/domain"
)

// CasbinEnforcerWrapper wraps the real Casbin enforcer to implement our interface
type CasbinEnforcerWrapper struct {
	enforcer *casbin.Enforcer
}

// NewCasbinEnforcerWrapper creates a wrapper for the real Casbin enforcer
func NewCasbinEnforcerWrapper(enforcer *casbin.Enforcer) domain.CasbinEnforcer {
	return &CasbinEnforcerWrapper{enforcer: enforcer}
}

func (w *CasbinEnforcerWrapper) AddPolicy(params ...interface{}) (bool, error) {
	return w.enforcer.AddPolicy(params...)
}

func (w *CasbinEnforcerWrapper) RemovePolicy(params ...interface{}) (bool, error) {
	return w.enforcer.RemovePolicy(params...)
}

func (w *CasbinEnforcerWrapper) Enforce(rvals ...interface{}) (bool, error) {
	return w.enforcer.Enforce(rvals...)
}

func (w *CasbinEnforcerWrapper) GetPolicy() ([][]string, error) {
	return w.enforcer.GetPolicy()
}

// RoleSubject is the casbin subject for a role
func RoleSubject(role domain.Role) string {
	return "role_" + string(role)
}

// DefaultPolicies grants each role the authenticated routes it may use
var DefaultPolicies = [][3]string{
	{RoleSubject(domain.RoleCustomer), "/auth/me", "GET"},
	{RoleSubject(domain.RoleCustomer), "/auth/logout", "POST"},
	{RoleSubject(domain.RoleAgent), "/auth/me", "GET"},
	{RoleSubject(domain.RoleAgent), "/auth/logout", "POST"},
	{RoleSubject(domain.RoleAdmin), "/auth/*", "(GET)|(POST)"},
	{RoleSubject(domain.RoleAdmin), "/admin/*", "(GET)|(POST)|(DELETE)"},
}

// PolicyServiceImpl implements domain.PolicyService using Casbin
type PolicyServiceImpl struct {
	enforcer domain.CasbinEnforcer
}

// NewPolicyService creates a new policy service
func NewPolicyService(enforcer *casbin.Enforcer) domain.PolicyService {
	return &PolicyServiceImpl{
		enforcer: NewCasbinEnforcerWrapper(enforcer),
	}
}

// NewPolicyServiceWithEnforcer creates a new policy service with a CasbinEnforcer interface (for testing)
func NewPolicyServiceWithEnforcer(enforcer domain.CasbinEnforcer) domain.PolicyService {
	return &PolicyServiceImpl{
		enforcer: enforcer,
	}
}

// AddPolicy implements domain.PolicyService
func (p *PolicyServiceImpl) AddPolicy(role domain.Role, resource, action string) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}
	_, err := p.enforcer.AddPolicy(RoleSubject(role), resource, action)
	return err
}

// RemovePolicy implements domain.PolicyService
func (p *PolicyServiceImpl) RemovePolicy(role domain.Role, resource, action string) error {
	_, err := p.enforcer.RemovePolicy(RoleSubject(role), resource, action)
	return err
}

// CheckPermission implements domain.PolicyService
func (p *PolicyServiceImpl) CheckPermission(role domain.Role, resource, action string) (bool, error) {
	if !role.Valid() {
		return false, nil
	}
	return p.enforcer.Enforce(RoleSubject(role), resource, action)
}

// GetPolicies implements domain.PolicyService
func (p *PolicyServiceImpl) GetPolicies() [][]string {
	policies, _ := p.enforcer.GetPolicy()
	return policies
}

// SeedDefaultPolicies installs DefaultPolicies when the enforcer holds none
func SeedDefaultPolicies(enforcer domain.CasbinEnforcer) error {
	existing, err := enforcer.GetPolicy()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, rule := range DefaultPolicies {
		if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return fmt.Errorf("seed policy %v: %w", rule, err)
		}
	}
	return nil
}
