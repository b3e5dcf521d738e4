package service

import "podcast-api/internal/validation"

const (
	msgEmailTaken     = "Cet email est déjà utilisé."
	msgImageFormat    = "Le fichier doit être au format png, jpg ou jpeg."
	msgImageTooLarge  = "L'image ne doit pas dépasser 2MB."
	msgImageEmpty     = "Le fichier image est vide."
	msgAudioRequired  = "Le fichier audio est obligatoire."
	msgAudioFormat    = "Le fichier audio doit être au format MP3 ou WAV."
	msgMediaURL       = "Le lien du fichier doit être une URL valide."
	msgRoleInvalid    = "Le rôle doit être administrateur, animateur ou utilisateur."
	msgPasswordLength = "Le mot de passe doit contenir au moins 8 caractères."
)

var userMessages = validation.Messages{
	"nom.required":                   "Le nom est obligatoire.",
	"nom.min":                        "Le nom est obligatoire.",
	"nom.max":                        "Le nom ne peut pas dépasser 255 caractères.",
	"prenom.required":                "Le prénom est obligatoire.",
	"prenom.min":                     "Le prénom est obligatoire.",
	"prenom.max":                     "Le prénom ne peut pas dépasser 255 caractères.",
	"email.required":                 "L'email est obligatoire.",
	"email.min":                      "L'email est obligatoire.",
	"email.email":                    "L'email doit être valide.",
	"password.required":              "Le mot de passe est obligatoire.",
	"password.min":                   msgPasswordLength,
	"password_confirmation.required": "La confirmation du mot de passe est obligatoire.",
	"password_confirmation.eqfield":  "La confirmation du mot de passe ne correspond pas.",
	"role.required":                  "Le rôle est obligatoire.",
	"role.min":                       "Le rôle est obligatoire.",
	"role.oneof":                     msgRoleInvalid,
}

var credentialMessages = validation.Messages{
	"email.required":                     "L'email est obligatoire.",
	"email.email":                        "L'email doit être valide.",
	"password.required":                  "Le mot de passe est obligatoire.",
	"old_password.required":              "L'ancien mot de passe est obligatoire.",
	"new_password.required":              "Le nouveau mot de passe est obligatoire.",
	"new_password.min":                   msgPasswordLength,
	"new_password_confirmation.required": "La confirmation du mot de passe est obligatoire.",
	"new_password_confirmation.eqfield":  "La confirmation du mot de passe ne correspond pas.",
}

var podcastMessages = validation.Messages{
	"titre.required":     "Le titre du podcast est obligatoire.",
	"titre.min":          "Le titre du podcast est obligatoire.",
	"titre.max":          "Le titre ne peut pas dépasser 255 caractères.",
	"categorie.required": "La catégorie est obligatoire.",
	"categorie.min":      "La catégorie est obligatoire.",
	"categorie.max":      "La catégorie ne peut pas dépasser 100 caractères.",
	"description.min":    "La description doit dépasser 10 caractères.",
	"image.url":          msgMediaURL,
}

var episodeMessages = validation.Messages{
	"titre.required":  "Le titre de l'épisode est obligatoire.",
	"titre.min":       "Le titre de l'épisode est obligatoire.",
	"titre.max":       "Le titre ne peut pas dépasser 255 caractères.",
	"description.min": "La description doit dépasser 10 caractères.",
	"audio.url":       msgMediaURL,
}
