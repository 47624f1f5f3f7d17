package logging

import "github.com/sirupsen/logrus"

// BaseFields builds the action + config path fields shared by CLI entry points.
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields builds the per-request fields shared by the index endpoints.
func RequestFields(action, project, user string) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"project": project,
		"user":    user,
	}
}
