// Copyright 2024 The Judgebox Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"errors"
	"fmt"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
)

type journalHook struct{}

func newJournalHook() (logrus.Hook, error) {
	if !journal.Enabled() {
		return nil, errors.New("log: systemd-journald is not available on this host")
	}
	return journalHook{}, nil
}

func (journalHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (journalHook) Fire(e *logrus.Entry) error {
	vars := make(map[string]string, len(e.Data))
	for k, v := range e.Data {
		vars[k] = fmt.Sprintf("%v", v)
	}
	return journal.Send(e.Message, journalPriority(e.Level), vars)
}

func journalPriority(level logrus.Level) journal.Priority {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return journal.PriCrit
	case logrus.ErrorLevel:
		return journal.PriErr
	case logrus.WarnLevel:
		return journal.PriWarning
	case logrus.InfoLevel:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}
