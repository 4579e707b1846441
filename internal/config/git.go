package config

import "time"

type GitConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Pull           bool   `yaml:"pull-before-write"`
	RemoteName     string `yaml:"remote"`
	BranchName     string `yaml:"branch"`
	Name           string `yaml:"author-name"`
	Email          string `yaml:"author-email"`
	TimeoutSeconds int64  `yaml:"timeout-seconds"`
}

func (g *GitConfig) PullBeforeWrite() bool {
	return g.Pull
}

func (g *GitConfig) Remote() string {
	return g.RemoteName
}

func (g *GitConfig) Branch() string {
	return g.BranchName
}

func (g *GitConfig) AuthorName() string {
	return g.Name
}

func (g *GitConfig) AuthorEmail() string {
	return g.Email
}

func (g *GitConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}
