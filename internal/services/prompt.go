package services

import (
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"gorm.io/gorm"
)

type PromptService struct {
	db *gorm.DB
}

func NewPromptService(db *gorm.DB) *PromptService {
	return &PromptService{db: db}
}

func (s *PromptService) GetByID(id uint) (*models.PromptTemplate, error) {
	var prompt models.PromptTemplate
	if err := s.db.First(&prompt, id).Error; err != nil {
		return nil, err
	}
	return &prompt, nil
}

func (s *PromptService) GetDefault() (*models.PromptTemplate, error) {
	var prompt models.PromptTemplate
	if err := s.db.Where("is_default = ?", true).Order("is_system ASC, id DESC").First(&prompt).Error; err != nil {
		return nil, err
	}
	return &prompt, nil
}

// GetForOutlet resolves the outlet's template, then the default one, then
// the built-in prompt.
func (s *PromptService) GetForOutlet(templateID *uint) string {
	if templateID != nil {
		if prompt, err := s.GetByID(*templateID); err == nil && prompt.Content != "" {
			return prompt.Content
		}
	}
	if prompt, err := s.GetDefault(); err == nil && prompt.Content != "" {
		return prompt.Content
	}
	return models.DefaultReplyPrompt
}
